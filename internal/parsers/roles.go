package parsers

import (
	"strings"

	"github.com/Benny93/rfgraph/internal/config"
	"github.com/Benny93/rfgraph/internal/model"
)

// AssignRole infers the role of a file from its project-relative path. Test
// directories are checked before resource sub-directories, so a page object
// under the tests directory is still an atomic test file.
func AssignRole(relPath string, cfg *config.Config) model.Role {
	p := strings.ToLower(model.NormalizePath(relPath))

	switch {
	case strings.HasPrefix(p, strings.ToLower(cfg.MigrationDir)):
		return model.RoleMigrationTest
	case strings.HasPrefix(p, strings.ToLower(cfg.SITDir)+"/"):
		return model.RoleE2ETest
	case strings.HasPrefix(p, strings.ToLower(cfg.TestsDir)):
		return model.RoleAtomicTest
	case strings.Contains(p, "/po/"):
		return model.RolePageObject
	case strings.Contains(p, "/flow/"):
		return model.RoleFlow
	case strings.Contains(p, "/api/"):
		return model.RoleAPI
	case strings.HasPrefix(p, strings.ToLower(cfg.ResourcesDir)):
		return model.RoleKnowledgeBase
	case strings.HasPrefix(p, strings.ToLower(cfg.DataDirName)):
		return model.RoleDataLayer
	}
	return model.RoleUnknown
}

// AssignPlatform infers the target platform of a file from its path. Every
// mobile directory maps to ios.
func AssignPlatform(relPath string) model.Platform {
	p := strings.ToLower(model.NormalizePath(relPath))

	switch {
	case strings.Contains(p, "/mobile/"), strings.Contains(p, "/ios/"), strings.Contains(p, "/android/"):
		return model.PlatformIOS
	case strings.Contains(p, "/web/"):
		return model.PlatformWeb
	case strings.Contains(p, "/be/"):
		return model.PlatformBackend
	}
	return model.PlatformCommon
}

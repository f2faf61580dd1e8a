package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"File", FileUID(`resources\web\po\login.resource`), "resources/web/po/login.resource"},
		{"FQN", FQN("resources/web/flow/login_flow.resource", "Login"), "login_flow.Login"},
		{"Variable", VariableUID("${URL}"), "var:${URL}"},
		{"Tag", TagUID("smoke"), "tag:smoke"},
		{"Element", ElementUID("submit_btn"), "element:submit_btn"},
		{"StripTag", StripTagPrefix("tag:smoke"), "smoke"},
		{"StripElement", StripElementPrefix("element:submit_btn"), "submit_btn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.got)
		})
	}
}

func TestNewVariable(t *testing.T) {
	t.Parallel()

	t.Run("Scalar", func(t *testing.T) {
		t.Parallel()
		v := NewVariable("${BASE_URL}", "https://example.test", "data/env.resource")
		assert.Equal(t, VarScalar, v.Type)
		assert.Equal(t, "https://example.test", v.Value)
	})

	t.Run("ListAndDict", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, VarList, NewVariable("@{USERS}", "a    b", "x.resource").Type)
		assert.Equal(t, VarDict, NewVariable("&{IOS}", "k=v", "x.resource").Type)
	})

	t.Run("RedactedAtCreation", func(t *testing.T) {
		t.Parallel()
		for _, name := range []string{"${PASSWORD}", "${api_token}", "${ClientSecret}", "${SSH_KEY}", "&{CREDENTIALS}"} {
			v := NewVariable(name, "hunter2", "data/secrets.resource")
			assert.Equal(t, Redacted, v.Value, name)
		}
	})
}

func TestBareName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "IOS", BareName("&{IOS}"))
	assert.Equal(t, "URL", BareName("${URL}"))
	assert.Equal(t, "plain", BareName("plain"))
}

func TestLocatorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		mapping    *LocatorMapping
		mismatched bool
	}{
		{"Both", NewLocatorMapping("btn", "id=a", "id=b"), false},
		{"Neither", NewLocatorMapping("btn", "", ""), false},
		{"OnlyIOS", NewLocatorMapping("btn", "id=a", ""), true},
		{"OnlyAndroid", NewLocatorMapping("btn", "", "id=b"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.mismatched, tt.mapping.Mismatched())
		})
	}

	lm := NewLocatorMapping("submit_btn", "accessibility_id=submit", "")
	assert.Nil(t, lm.Android)
	assert.Equal(t, "accessibility_id=submit", lm.IOSOrMissing())
	assert.Equal(t, Missing, lm.AndroidOrMissing())
}

func TestStem(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "common", Stem("resources/platform/common.resource"))
	assert.Equal(t, "login_test", Stem(`tests\login_test.robot`))
	assert.Equal(t, "noext", Stem("noext"))
}

func TestRoleIsTest(t *testing.T) {
	t.Parallel()

	assert.True(t, RoleAtomicTest.IsTest())
	assert.True(t, RoleE2ETest.IsTest())
	assert.True(t, RoleMigrationTest.IsTest())
	assert.False(t, RoleFlow.IsTest())
	assert.False(t, RoleUnknown.IsTest())
}

package model

// Missing is reported in place of an absent platform locator.
const Missing = "MISSING"

// LocatorMapping pairs a UI element with at most one locator per mobile
// platform. A nil side means the platform does not define the element.
type LocatorMapping struct {
	Element string  `json:"element"`
	IOS     *string `json:"ios,omitempty"`
	Android *string `json:"android,omitempty"`
}

// NewLocatorMapping builds a mapping; empty strings are treated as absent.
func NewLocatorMapping(element, ios, android string) *LocatorMapping {
	lm := &LocatorMapping{Element: element}
	if ios != "" {
		lm.IOS = &ios
	}
	if android != "" {
		lm.Android = &android
	}
	return lm
}

// Mismatched reports whether exactly one platform defines the element.
func (lm *LocatorMapping) Mismatched() bool {
	return (lm.IOS == nil) != (lm.Android == nil)
}

// IOSOrMissing returns the iOS locator or Missing.
func (lm *LocatorMapping) IOSOrMissing() string {
	return valueOrMissing(lm.IOS)
}

// AndroidOrMissing returns the Android locator or Missing.
func (lm *LocatorMapping) AndroidOrMissing() string {
	return valueOrMissing(lm.Android)
}

func valueOrMissing(s *string) string {
	if s == nil || *s == "" {
		return Missing
	}
	return *s
}

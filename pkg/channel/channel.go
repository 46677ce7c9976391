// Package channel owns the naming convention for broker channels.
//
// Producers (the web application, the git hooks) and the relay daemons
// agree on these names; the broker itself treats them as opaque strings.
package channel

import (
	"fmt"
	"regexp"
)

// Fixed channels, one per always-on relay.
const (
	Hook     = "pagure.hook"
	CI       = "pagure.ci"
	LoadJSON = "pagure.loadjson"
)

const objectPrefix = "pagure."

var uidRegex = regexp.MustCompile("^[0-9a-f]{32}$")

// ForObject derives the per-object channel name from an object uid.
// The uid is assigned once at object creation and never reused, so the
// derivation is stable for the lifetime of the object.
func ForObject(uid string) (string, error) {
	if !uidRegex.MatchString(uid) {
		return "", fmt.Errorf("channel: %q is not a valid object uid", uid)
	}

	return objectPrefix + uid, nil
}

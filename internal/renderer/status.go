package renderer

import (
	"fmt"
	"strings"

	"github.com/dshills/tandem/internal/collab/position"
	"github.com/dshills/tandem/internal/collab/shared"
)

// StatusLine describes where the other sites are relative to the local
// site's document. name resolves a site to a display name.
func StatusLine(sum position.Summary, name func(shared.SiteID) string) string {
	var b strings.Builder
	if sum.Document == "" {
		b.WriteString("no shared document")
	} else {
		b.WriteString(string(sum.Document))
	}

	if len(sum.Inside) > 0 {
		b.WriteString("  here:")
		for _, m := range sum.Inside {
			fmt.Fprintf(&b, " @%s", name(m.Site))
			if !m.FullColor {
				b.WriteString(" (following)")
			}
		}
	}
	if len(sum.Elsewhere) > 0 {
		b.WriteString("  elsewhere:")
		for _, site := range sum.Elsewhere {
			fmt.Fprintf(&b, " @%s", name(site))
		}
	}
	return b.String()
}

// SiteNames returns a name resolver backed by a portal. Unknown sites are
// shown by id.
func SiteNames(portal shared.Portal) func(shared.SiteID) string {
	return func(site shared.SiteID) string {
		if id, ok := portal.SiteIdentity(site); ok && id.DisplayName != "" {
			return id.DisplayName
		}
		return site.String()
	}
}

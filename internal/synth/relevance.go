package synth

import (
	"fmt"
	"strings"

	"github.com/fixstream/fixstream/internal/models"
)

// actionSiteToken is the reserved site token for the default action site.
// Every other site is referenced by its name verbatim.
const actionSiteToken = "actionsite"

// BuildTargetRelevance renders the membership predicate that selects which
// endpoints the action applies to. Pure function of the group: automatic
// groups are targeted by numeric id within their owning site, manual and
// server-based groups by name on the client, with distinct predicates.
func BuildTargetRelevance(g models.TargetGroup) string {
	switch g.Kind {
	case models.GroupAutomatic:
		token := g.Site
		if strings.EqualFold(g.Site, actionSiteToken) {
			token = actionSiteToken
		}
		return fmt.Sprintf(`exists true whose (if true then (member of group %s of site %q) else false)`, g.ID, token)
	case models.GroupManual:
		return fmt.Sprintf(`exists true whose (if true then (member of manual group %q of client) else false)`, g.Name)
	default:
		// Server-based is the fallback for anything unrecognized.
		return fmt.Sprintf(`exists true whose (if true then (member of server based group %q of client) else false)`, g.Name)
	}
}

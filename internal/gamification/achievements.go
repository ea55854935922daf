package gamification

import "github.com/metal-master/backend/internal/rules"

// CheckBadges returns, in ruleset order, the ids of badges newly satisfied
// by facts. Badges in earned are never returned again; persisting the
// result exactly once is the caller's job.
func CheckBadges(badges []rules.Badge, earned map[string]struct{}, facts rules.Facts) []string {
	newly := []string{}
	for _, b := range badges {
		if _, ok := earned[b.BadgeID]; ok {
			continue
		}
		if b.Requirement().Satisfied(facts) {
			newly = append(newly, b.BadgeID)
		}
	}
	return newly
}

func stringSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

package escalation

import (
	"context"
	"fmt"
	"strings"
)

// StaticGroups resolves user-group ids from a fixed map configured at startup.
type StaticGroups map[string][]string

func (g StaticGroups) ExpandGroup(ctx context.Context, groupID string) ([]string, error) {
	users, ok := g[groupID]
	if !ok {
		return nil, fmt.Errorf("unknown user group %q", groupID)
	}
	return users, nil
}

// ParseStaticGroups parses the USER_GROUPS setting: semicolon-separated
// name=user|user pairs, e.g. "core=alice|bob;db=carol". Malformed pairs and
// empty member lists are dropped.
func ParseStaticGroups(raw string) StaticGroups {
	groups := StaticGroups{}
	for _, pair := range strings.Split(raw, ";") {
		name, members, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		var users []string
		for _, u := range strings.Split(members, "|") {
			if u = strings.TrimSpace(u); u != "" {
				users = append(users, u)
			}
		}
		if name = strings.TrimSpace(name); name != "" && len(users) > 0 {
			groups[name] = users
		}
	}
	return groups
}

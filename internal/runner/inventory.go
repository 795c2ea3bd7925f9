package runner

import (
	"fmt"
	"sort"
	"strings"

	"opsplane/internal/job"
)

// renderInventory turns a structured group/host mapping into Ansible's INI
// inventory format. Every top-level group produces a section header, even
// when it has no hosts. Host variables become key=value tokens appended to
// the host line.
func renderInventory(groups map[string]job.InventoryGroup) string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s]\n", name)

		group := groups[name]
		hosts := make([]string, 0, len(group.Hosts))
		for host := range group.Hosts {
			hosts = append(hosts, host)
		}
		sort.Strings(hosts)

		for _, host := range hosts {
			b.WriteString(host)
			vars := group.Hosts[host]
			keys := make([]string, 0, len(vars))
			for k := range vars {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, " %s=%s", k, vars[k])
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

package runner

import (
	"strings"
	"testing"

	"opsplane/internal/job"
)

func TestRenderInventory_HostsWithVariables(t *testing.T) {
	groups := map[string]job.InventoryGroup{
		"all": {
			Hosts: map[string]map[string]string{
				"localhost": {"ansible_connection": "local"},
			},
		},
	}

	out := renderInventory(groups)
	if !strings.Contains(out, "[all]\n") {
		t.Errorf("missing [all] section header:\n%s", out)
	}
	if !strings.Contains(out, "localhost ansible_connection=local\n") {
		t.Errorf("missing host line with variables:\n%s", out)
	}
}

func TestRenderInventory_EmptyGroup(t *testing.T) {
	groups := map[string]job.InventoryGroup{
		"webservers": {},
	}

	out := renderInventory(groups)
	if out != "[webservers]\n" {
		t.Errorf("empty group should render a bare section header, got %q", out)
	}
}

func TestRenderInventory_MultipleGroupsSorted(t *testing.T) {
	groups := map[string]job.InventoryGroup{
		"webservers": {Hosts: map[string]map[string]string{"web1": nil}},
		"databases":  {Hosts: map[string]map[string]string{"db1": {"port": "5432"}}},
	}

	out := renderInventory(groups)
	dbIdx := strings.Index(out, "[databases]")
	webIdx := strings.Index(out, "[webservers]")
	if dbIdx < 0 || webIdx < 0 {
		t.Fatalf("missing section headers:\n%s", out)
	}
	if dbIdx > webIdx {
		t.Error("groups should render in sorted order")
	}
	if !strings.Contains(out, "db1 port=5432\n") {
		t.Errorf("host variable not rendered:\n%s", out)
	}
	if !strings.Contains(out, "web1\n") {
		t.Errorf("host without variables not rendered:\n%s", out)
	}
}

func TestRenderInventory_MultipleHostVariablesSorted(t *testing.T) {
	groups := map[string]job.InventoryGroup{
		"all": {
			Hosts: map[string]map[string]string{
				"node1": {"b_var": "2", "a_var": "1"},
			},
		},
	}

	out := renderInventory(groups)
	if !strings.Contains(out, "node1 a_var=1 b_var=2\n") {
		t.Errorf("host variables should render sorted as key=value tokens:\n%s", out)
	}
}

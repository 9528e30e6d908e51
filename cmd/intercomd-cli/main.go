package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

func main() {
	args := os.Args[1:]
	jsonOutput := false
	filtered := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "-json" || arg == "--json" {
			jsonOutput = true
			continue
		}
		filtered = append(filtered, arg)
	}
	args = filtered

	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	client := &daemonClient{
		baseURL: resolveAddr(),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	out := outputMode{json: jsonOutput}

	switch args[0] {
	case "doors":
		doorsCmd(client, out, args[1:])
	case "health":
		healthCmd(client, out)
	default:
		usage()
		os.Exit(2)
	}
}

func doorsCmd(client *daemonClient, out outputMode, args []string) {
	if len(args) == 0 {
		doorsUsage()
		os.Exit(2)
	}

	switch args[0] {
	case "list":
		doors, err := client.doors()
		if err != nil {
			fatal("list doors", err)
		}
		if out.json {
			out.printJSON(doors)
			return
		}
		rows := [][]string{{"DOOR", "HOME", "MODULE_ID", "BRIDGE_ID", "ON"}}
		for _, door := range doors {
			rows = append(rows, []string{
				door.ModuleName, door.HomeName, door.ModuleID, door.BridgeID,
				strconv.FormatBool(door.On),
			})
		}
		out.table(rows)
	case "open":
		if len(args) < 2 {
			fatal("doors open", fmt.Errorf("usage: intercomd-cli doors open <module_id|name>"))
		}
		moduleID, err := client.resolveDoor(args[1])
		if err != nil {
			fatal("doors open", err)
		}
		if err := client.openDoor(moduleID); err != nil {
			fatal("doors open", err)
		}
		if out.json {
			out.printJSON(map[string]any{"module_id": moduleID, "status": "opened"})
			return
		}
		fmt.Printf("ok: opened %s\n", moduleID)
	default:
		doorsUsage()
		os.Exit(2)
	}
}

func healthCmd(client *daemonClient, out outputMode) {
	status, err := client.health()
	if err != nil {
		fatal("health", err)
	}
	if out.json {
		out.printJSON(map[string]string{"status": status})
		return
	}
	fmt.Println(status)
}

type daemonClient struct {
	baseURL string
	http    *http.Client
}

type doorView struct {
	HomeID     string `json:"home_id"`
	HomeName   string `json:"home_name"`
	Timezone   string `json:"timezone"`
	BridgeID   string `json:"bridge_id"`
	ModuleID   string `json:"module_id"`
	ModuleName string `json:"module_name"`
	On         bool   `json:"on"`
}

func (c *daemonClient) doors() ([]doorView, error) {
	resp, err := c.http.Get(c.baseURL + "/netatmo/doors")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Doors []doorView `json:"doors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload.Doors, nil
}

func (c *daemonClient) openDoor(moduleID string) error {
	endpoint := c.baseURL + "/netatmo/doors/open?module_id=" + url.QueryEscape(moduleID)
	resp, err := c.http.Post(endpoint, "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// resolveDoor accepts either a module id or a door name, case-insensitive.
func (c *daemonClient) resolveDoor(ref string) (string, error) {
	doors, err := c.doors()
	if err != nil {
		return "", err
	}

	for _, door := range doors {
		if door.ModuleID == ref {
			return door.ModuleID, nil
		}
	}

	var matches []string
	for _, door := range doors {
		if strings.EqualFold(door.ModuleName, ref) {
			matches = append(matches, door.ModuleID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no door named %q", ref)
	default:
		return "", fmt.Errorf("door name %q is ambiguous; use a module id", ref)
	}
}

func (c *daemonClient) health() (string, error) {
	resp, err := c.http.Get(c.baseURL + "/health")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

func resolveAddr() string {
	if value := os.Getenv("INTERCOMD_HTTP_ADDR"); value != "" {
		if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
			return strings.TrimSuffix(value, "/")
		}
		return "http://" + value
	}
	return "http://127.0.0.1:8080"
}

func usage() {
	fmt.Println("intercomd-cli [-json] <command>")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  doors list")
	fmt.Println("  doors open <module_id|name>")
	fmt.Println("  health")
}

func doorsUsage() {
	fmt.Println("intercomd-cli doors <command>")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list")
	fmt.Println("  open <module_id|name>")
}

func fatal(op string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", op, err)
	os.Exit(1)
}

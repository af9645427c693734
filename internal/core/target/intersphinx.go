package target

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// InventoryEntry is one decoded line of a Sphinx objects.inv file
// (spec.md §6's intersphinx inventory format): `NAME DOMAIN:ROLE
// PRIORITY URI DISPLAYNAME`.
type InventoryEntry struct {
	Name        string
	Domain      string
	Role        string
	Priority    int
	URI         string
	DisplayName string
}

var inventoryLineRe = regexp.MustCompile(`^(\S+)\s+(\S+):(\S+)\s+(-?\d+)\s+(\S+)\s+(.*)$`)

// DecodeInventory parses a version-2 Sphinx object inventory: four ASCII
// header lines followed by a zlib stream of entry lines. Invalid lines
// are skipped and returned alongside the decoded entries rather than
// aborting the whole inventory.
func DecodeInventory(raw []byte) ([]InventoryEntry, []string, error) {
	r := bufio.NewReader(bytes.NewReader(raw))
	for i := 0; i < 4; i++ {
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, nil, fmt.Errorf("reading inventory header line %d: %w", i+1, err)
		}
		if i == 0 && !strings.HasPrefix(line, "# Sphinx inventory version 2") {
			return nil, nil, fmt.Errorf("unsupported inventory format: %q", strings.TrimSpace(line))
		}
	}

	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing inventory body: %w", err)
	}
	defer zr.Close()

	body, err := io.ReadAll(zr)
	if err != nil {
		return nil, nil, fmt.Errorf("reading inventory body: %w", err)
	}

	var entries []InventoryEntry
	var skipped []string
	for _, line := range strings.Split(string(body), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := inventoryLineRe.FindStringSubmatch(line)
		if m == nil {
			skipped = append(skipped, line)
			continue
		}
		priority, err := strconv.Atoi(m[4])
		if err != nil {
			skipped = append(skipped, line)
			continue
		}
		name, domain, role, uri, dispname := m[1], m[2], m[3], m[5], m[6]
		if strings.HasSuffix(uri, "$") {
			uri = strings.TrimSuffix(uri, "$") + name
		}
		if dispname == "-" {
			dispname = name
		}
		entries = append(entries, InventoryEntry{
			Name:        name,
			Domain:      domain,
			Role:        role,
			Priority:    priority,
			URI:         uri,
			DisplayName: dispname,
		})
	}
	return entries, skipped, nil
}

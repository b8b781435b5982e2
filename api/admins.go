package api

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/warp/moderation-engine/moderation"
)

// Permission keys checked by the route layer.
const (
	PermBan        = "players.ban"
	PermMute       = "players.mute"
	PermWarn       = "players.warn"
	PermWagerStaff = "wager.staff"
	PermWagerHead  = "wager.head"
)

// PermissionProvider resolves an admin name to its permission facts.
type PermissionProvider interface {
	Lookup(name string) (moderation.Capabilities, bool)
}

// Admin is one entry of the admins file.
type Admin struct {
	Name        string   `json:"name"`
	Master      bool     `json:"master"`
	Permissions []string `json:"permissions"`
}

// AdminDirectory is an in-memory PermissionProvider. Names are matched
// case-insensitively.
type AdminDirectory struct {
	mu     sync.RWMutex
	admins map[string]Admin
}

func NewAdminDirectory(admins ...Admin) *AdminDirectory {
	d := &AdminDirectory{admins: make(map[string]Admin, len(admins))}
	for _, a := range admins {
		d.Put(a)
	}
	return d
}

// LoadAdmins reads a JSON array of Admin from path.
func LoadAdmins(path string) (*AdminDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var admins []Admin
	if err := json.Unmarshal(data, &admins); err != nil {
		return nil, fmt.Errorf("parse admins file %s: %w", path, err)
	}
	return NewAdminDirectory(admins...), nil
}

func (d *AdminDirectory) Put(a Admin) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.admins[strings.ToLower(a.Name)] = a
}

func (d *AdminDirectory) Lookup(name string) (moderation.Capabilities, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.admins[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return moderation.Capabilities{}, false
	}
	return moderation.Capabilities{Master: a.Master, Permissions: a.Permissions}, true
}

func (d *AdminDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.admins)
}

var _ PermissionProvider = (*AdminDirectory)(nil)

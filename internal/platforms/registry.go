package platforms

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
)

// Platform is a job platform whose login the vault can hold for a user.
type Platform struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	LoginURL string `json:"login_url"`
}

type platformsFile struct {
	Platforms []Platform `json:"platforms"`
}

func Defaults() []Platform {
	return []Platform{
		{ID: "linkedin", Name: "LinkedIn", LoginURL: "https://www.linkedin.com/login"},
		{ID: "naukri", Name: "Naukri", LoginURL: "https://www.naukri.com/nlogin/login"},
		{ID: "indeed", Name: "Indeed", LoginURL: "https://secure.indeed.com/auth"},
	}
}

type Registry struct {
	mu        sync.RWMutex
	platforms map[string]*Platform
}

func NewRegistry(list ...Platform) *Registry {
	r := &Registry{platforms: make(map[string]*Platform)}
	for i := range list {
		r.Register(list[i])
	}
	return r
}

// LoadFromFile reads the catalogue from path. A missing file yields the
// built-in defaults.
func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewRegistry(Defaults()...), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read platforms config: %w", err)
	}

	var file platformsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse platforms config: %w", err)
	}
	if len(file.Platforms) == 0 {
		return nil, errors.New("platforms config lists no platforms")
	}
	for _, p := range file.Platforms {
		if strings.TrimSpace(p.ID) == "" {
			return nil, errors.New("platforms config has an entry without id")
		}
	}
	return NewRegistry(file.Platforms...), nil
}

func (r *Registry) Register(p Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = strings.ToLower(strings.TrimSpace(p.ID))
	r.platforms[p.ID] = &p
}

func (r *Registry) Get(id string) *Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.platforms[strings.ToLower(strings.TrimSpace(id))]
}

func (r *Registry) Exists(id string) bool {
	return r.Get(id) != nil
}

// All returns the catalogue sorted by id.
func (r *Registry) All() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Platform, 0, len(r.platforms))
	for _, p := range r.platforms {
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

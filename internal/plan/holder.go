package plan

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// CatalogHolder serves the current plan catalog and hot-reloads it when the
// plans.yml file changes on disk.
type CatalogHolder struct {
	current atomic.Value // holds Catalog
}

// NewCatalogHolder loads plans.yml (falling back to the built-in defaults) and
// watches it for changes.
func NewCatalogHolder() (*CatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tenantcore/config")
	v.AddConfigPath("/etc/tenantcore")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TENANTCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fromFile = false
	}

	holder := &CatalogHolder{}

	cfg := DefaultCatalog()
	if fromFile {
		var loaded Catalog
		if err := v.Unmarshal(&loaded); err != nil {
			return nil, err
		}
		if err := validateCatalog(loaded); err != nil {
			return nil, err
		}
		cfg = loaded
	}
	holder.current.Store(cfg)

	if fromFile {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated Catalog
			if err := v.Unmarshal(&updated); err != nil {
				log.Printf("[plan-catalog] reload failed: %v", err)
				return
			}
			if err := validateCatalog(updated); err != nil {
				log.Printf("[plan-catalog] invalid catalog ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[plan-catalog] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

// NewStaticHolder wraps a fixed catalog, used by tests.
func NewStaticHolder(c Catalog) *CatalogHolder {
	holder := &CatalogHolder{}
	holder.current.Store(c)
	return holder
}

// Get returns the current catalog snapshot.
func (h *CatalogHolder) Get() Catalog {
	return h.current.Load().(Catalog)
}

func validateCatalog(c Catalog) error {
	if len(c.Plans) == 0 {
		return errors.New("plans cannot be empty")
	}
	seen := make(map[string]bool, len(c.Plans))
	for _, def := range c.Plans {
		id := strings.TrimSpace(def.ID)
		if id == "" {
			return errors.New("plan id cannot be empty")
		}
		if seen[id] {
			return errors.New("duplicate plan id: " + id)
		}
		seen[id] = true
		if def.Level < 0 {
			return errors.New("plan level cannot be negative: " + id)
		}
	}
	return nil
}

// Package plugins indexes plugin objects and routes authorized calls to them.
package plugins

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danmuck/rpcgate/internal/protocol/value"
	"github.com/rs/zerolog/log"
)

// Ext is the plugin file extension picked up by Load.
const Ext = ".lua"

var (
	ErrObjectExists = errors.New("plugins: object already exists")
	ErrObjectNil    = errors.New("plugins: object is nil")
	ErrInvalidName  = errors.New("plugins: invalid object name")
)

// Registry stores objects by name. Objects are never removed.
type Registry struct {
	sessions Sessions
	items    map[string]Object
	names    []string
}

func NewRegistry(sessions Sessions) *Registry {
	return &Registry{
		sessions: sessions,
		items:    make(map[string]Object),
	}
}

// ObjectName maps a plugin path relative to the plugin root to its object
// name: "net/wifi.lua" becomes "net.wifi".
func ObjectName(rel string) string {
	rel = filepath.ToSlash(strings.TrimSuffix(rel, Ext))
	return strings.ReplaceAll(rel, "/", ".")
}

// Load scans dir once, recursively, and registers every plugin rt can load.
// Bad files are logged and skipped. It returns the number registered.
func (r *Registry) Load(dir string, rt Runtime) (int, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, fmt.Errorf("plugins: scan %s: %w", dir, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("plugins: scan %s: not a directory", dir)
	}

	loaded := 0
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			log.Warn().Str("path", p).Err(walkErr).Msg("plugins.Registry.Load walk")
			return nil
		}
		if d.IsDir() || filepath.Ext(p) != Ext {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return nil
		}
		name := ObjectName(rel)
		if !isValidName(name) {
			log.Warn().Str("path", p).Str("name", name).Msg("plugins.Registry.Load invalid name")
			return nil
		}
		obj, err := rt.Load(name, p)
		if err != nil {
			log.Warn().Str("path", p).Err(err).Msg("plugins.Registry.Load runtime")
			return nil
		}
		if err := r.Register(obj); err != nil {
			log.Warn().Str("path", p).Str("name", name).Err(err).Msg("plugins.Registry.Load skipped")
			return nil
		}
		log.Debug().Str("name", name).Strs("methods", obj.Methods()).Msg("plugins.Registry.Load object")
		loaded++
		return nil
	})
	if err != nil {
		return loaded, fmt.Errorf("plugins: scan %s: %w", dir, err)
	}
	log.Info().Str("dir", dir).Int("objects", loaded).Msg("plugins.Registry.Load")
	return loaded, nil
}

// Register adds an object. The first object registered under a name wins.
func (r *Registry) Register(obj Object) error {
	if obj == nil {
		return ErrObjectNil
	}
	name := obj.Name()
	if !isValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if _, ok := r.items[name]; ok {
		return ErrObjectExists
	}
	r.items[name] = obj
	i := sort.SearchStrings(r.names, name)
	r.names = append(r.names, "")
	copy(r.names[i+1:], r.names[i:])
	r.names[i] = name
	return nil
}

func (r *Registry) Resolve(name string) (Object, bool) {
	obj, ok := r.items[name]
	return obj, ok
}

// Names returns all object names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// List returns the sorted names matching a path.Match pattern. An empty
// pattern matches everything.
func (r *Registry) List(pattern string) []string {
	if pattern == "" || pattern == "*" {
		return r.Names()
	}
	var out []string
	for _, name := range r.names {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			out = append(out, name)
		}
	}
	return out
}

// Listing returns {name: signature} for every object matching pattern on
// which sid may call at least one method. An unknown sid sees nothing.
func (r *Registry) Listing(sid, pattern string) value.Node {
	b := value.NewTableBuilder()
	sess, ok := r.sessions.Find(sid)
	if !ok {
		return b.Node()
	}
	for _, name := range r.List(pattern) {
		obj := r.items[name]
		for _, m := range obj.Methods() {
			level, _ := obj.Permission(m)
			if r.sessions.Access(sess, obj.Scope(), name, m, level) {
				b.Put(name, obj.Signature())
				break
			}
		}
	}
	return b.Node()
}

// Invoke authorizes and runs object.method for sid. Every failure is an Errno.
func (r *Registry) Invoke(sid, object, method string, args value.Node) (value.Node, error) {
	sess, ok := r.sessions.Find(sid)
	if !ok {
		log.Debug().Str("object", object).Str("method", method).Msg("plugins.Registry.Invoke unknown session")
		return value.Node{}, ErrnoAccess
	}
	obj, ok := r.Resolve(object)
	if !ok {
		log.Debug().Str("object", object).Msg("plugins.Registry.Invoke unknown object")
		return value.Node{}, ErrnoNotFound
	}
	level, ok := obj.Permission(method)
	if !ok {
		log.Debug().Str("object", object).Str("method", method).Msg("plugins.Registry.Invoke unknown method")
		return value.Node{}, ErrnoNotFound
	}
	if !r.sessions.Access(sess, obj.Scope(), object, method, level) {
		log.Debug().
			Str("user", sess.User.Username).
			Str("object", object).
			Str("method", method).
			Str("level", level.String()).
			Msg("plugins.Registry.Invoke denied")
		return value.Node{}, ErrnoAccess
	}

	out, err := obj.Call(CallContext{Session: sess, Sessions: r.sessions}, method, args)
	if err != nil {
		var errno Errno
		if errors.As(err, &errno) {
			return value.Node{}, errno
		}
		log.Warn().Str("object", object).Str("method", method).Err(err).Msg("plugins.Registry.Invoke call")
		return value.Node{}, ErrnoIO
	}
	return out, nil
}

// isValidName allows lowercase letters, digits and single separators (. - _)
// that neither start nor end the name.
func isValidName(id string) bool {
	if id == "" {
		return false
	}
	lastSep := false
	for i := 0; i < len(id); i++ {
		c := id[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '.' || c == '-' || c == '_'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if i == 0 || i == len(id)-1 {
			if isSep {
				return false
			}
		}
		if isSep && lastSep {
			return false
		}
		lastSep = isSep
	}
	return true
}

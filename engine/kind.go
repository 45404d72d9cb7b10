// Package engine implements the dump/load reconciliation engine: one
// generic controller parameterized by per-kind descriptors instead of one
// hand-written controller per resource kind, plus the system-level driver
// that fans out across kinds.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/elastic-stacker/stacker/config"
	"github.com/elastic-stacker/stacker/faults"
	"github.com/elastic-stacker/stacker/internal/transport"
	"github.com/elastic-stacker/stacker/resource"
	"github.com/elastic-stacker/stacker/store"
	"github.com/elastic-stacker/stacker/substitute"
)

type APIFamily string

const (
	FamilyElasticsearch APIFamily = "elasticsearch"
	FamilyKibana        APIFamily = "kibana"
)

type ResponseShape string

const (
	// ShapeMap lists resources as one object keyed by resource name.
	ShapeMap ResponseShape = "map"
	// ShapeList lists resources as an array under ListKey.
	ShapeList ResponseShape = "list"
)

type Pagination string

const (
	PaginateNone   Pagination = "none"
	PaginateOffset Pagination = "offset"
	PaginatePage   Pagination = "page"
)

// Kind describes one resource collection declaratively. The jq
// expressions (Managed, Identity, Body, LoadID, LoadBody) are compiled
// when the registry is built; a bad expression fails before any I/O.
type Kind struct {
	Name      string
	Directory string
	Family    APIFamily

	// Endpoint is the base management endpoint; record endpoints append
	// the resource identity.
	Endpoint   string
	ListMethod string // defaults to GET; watches query via POST
	Shape      ResponseShape
	ListKey    string
	Pagination Pagination
	PageSize   int

	// Managed is evaluated against {"name": ..., "resource": ...}; absence
	// at any level reads as "not managed".
	Managed string
	// Identity extracts the record identity for list-shaped and paginated
	// responses; map-shaped responses use the map key.
	Identity string
	// Body selects the payload stored on disk; empty stores the whole
	// record.
	Body string
	// SlugName slugifies the identity before it becomes a filename.
	SlugName bool
	// StripPaths are dotted key paths that cannot be reimported
	// (server-assigned timestamps, UUIDs, authorization metadata); the
	// store prunes them before writing.
	StripPaths []string

	// LoadID and LoadBody extract identity and payload from a stored
	// file on load; empty means filename stem and whole document.
	LoadID   string
	LoadBody string
	// CreateQuery is appended to every create call of this kind.
	CreateQuery transport.Query
	// RecordGlob overrides the per-record file pattern (saved objects
	// nest one directory per object type).
	RecordGlob string

	// ConflictOK treats the remote "resource already exists" conflict as
	// a successful no-op with a warning; recreation of such resources is
	// meaningless rather than wrong.
	ConflictOK bool
	// Experimental kinds dump but have no loader yet.
	Experimental bool

	// ListEndpoint overrides Endpoint for listings (watches query their
	// own search endpoint).
	ListEndpoint string

	// Hooks for behavior the descriptor table cannot express.
	DumpAll     func(ctx context.Context, c *Controller, opts DumpOptions) error
	DumpFinish  func(ctx context.Context, c *Controller) error
	LoadAll     func(ctx context.Context, c *Controller, opts LoadOptions) error
	PrepareLoad func(c *Controller, id string, doc resource.Document) (resource.Document, error)
	PostCreate  func(ctx context.Context, c *Controller, id string) error
}

// Registry holds every registered kind in a fixed order. Dump and load
// passes walk kinds in this order (or the user-given subset order).
type Registry struct {
	controllers  []*Controller
	experimental []*Controller
	byName       map[string]*Controller
}

// Deps carries the collaborators shared by every controller.
type Deps struct {
	Elasticsearch transport.API
	Kibana        transport.API
	Substitutions *substitute.Engine
	Options       config.Options
	Logger        *zap.Logger
}

func NewRegistry(deps Deps) (*Registry, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	registry := &Registry{byName: map[string]*Controller{}}
	for _, kind := range builtinKinds() {
		controller, err := newController(kind, deps)
		if err != nil {
			return nil, err
		}
		registry.byName[kind.Name] = controller
		if kind.Experimental {
			registry.experimental = append(registry.experimental, controller)
		} else {
			registry.controllers = append(registry.controllers, controller)
		}
	}
	return registry, nil
}

// Controller returns the controller for one kind name.
func (r *Registry) Controller(name string) (*Controller, error) {
	controller, ok := r.byName[name]
	if !ok {
		return nil, faults.NewTypedError(faults.ValidationError,
			fmt.Sprintf("unknown resource type %q", name), nil)
	}
	return controller, nil
}

// Select resolves the requested type names against the registered set,
// failing fast on any unknown name. An empty request selects all
// registered kinds in registration order.
func (r *Registry) Select(names []string, includeExperimental bool) ([]*Controller, error) {
	valid := r.controllers
	if includeExperimental {
		valid = append(append([]*Controller{}, r.controllers...), r.experimental...)
	}

	if len(names) == 0 {
		return valid, nil
	}

	validByName := make(map[string]*Controller, len(valid))
	for _, controller := range valid {
		validByName[controller.Name()] = controller
	}

	selected := make([]*Controller, 0, len(names))
	for _, name := range names {
		controller, ok := validByName[name]
		if !ok {
			return nil, faults.NewTypedError(faults.ValidationError,
				fmt.Sprintf("unknown resource type %q", name), nil)
		}
		selected = append(selected, controller)
	}
	return selected, nil
}

// Names lists the non-experimental kind names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.controllers))
	for _, controller := range r.controllers {
		names = append(names, controller.Name())
	}
	return names
}

func newController(kind Kind, deps Deps) (*Controller, error) {
	api := deps.Elasticsearch
	if kind.Family == FamilyKibana {
		api = deps.Kibana
	}
	if api == nil {
		return nil, faults.NewTypedError(faults.ValidationError,
			fmt.Sprintf("resource type %q has no %s client configured", kind.Name, kind.Family), nil)
	}

	controller := &Controller{
		kind:    kind,
		api:     api,
		options: deps.Options,
		log:     deps.Logger.With(zap.String("type", kind.Name)),
		store: store.New(store.Options{
			DataDirectory: deps.Options.DataDirectory,
			Collection:    kind.Directory,
			Substitutions: deps.Substitutions,
			ExcludePaths:  kind.StripPaths,
			Logger:        deps.Logger,
		}),
	}

	var err error
	if kind.Managed != "" {
		if controller.managed, err = resource.NewAccessor(kind.Managed); err != nil {
			return nil, err
		}
	}
	if kind.Identity != "" {
		if controller.identity, err = resource.NewAccessor(kind.Identity); err != nil {
			return nil, err
		}
	}
	if kind.Body != "" {
		if controller.body, err = resource.NewAccessor(kind.Body); err != nil {
			return nil, err
		}
	}
	if kind.LoadID != "" {
		if controller.loadID, err = resource.NewAccessor(kind.LoadID); err != nil {
			return nil, err
		}
	}
	if kind.LoadBody != "" {
		if controller.loadBody, err = resource.NewAccessor(kind.LoadBody); err != nil {
			return nil, err
		}
	}

	return controller, nil
}

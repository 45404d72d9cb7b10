package engine

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/elastic-stacker/stacker/internal/transport"
)

// executeEnrichPolicy runs a newly created enrich policy so its enrich
// index exists before anything references it.
func executeEnrichPolicy(ctx context.Context, c *Controller, name string) error {
	c.log.Warn("executing new enrich policy", zap.String("policy", name))
	_, err := c.api.Request(ctx, http.MethodPut, c.recordEndpoint(name)+"/_execute", nil, nil)
	return err
}

// builtinKinds returns every supported resource kind in registration
// order. Dump and load passes walk kinds in this order.
func builtinKinds() []Kind {
	return []Kind{
		{
			Name:         "indices",
			Directory:    "indices",
			Family:       FamilyElasticsearch,
			ListEndpoint: "/_all",
			Shape:        ShapeMap,
			Managed:      `.name | startswith(".")`,
			StripPaths: []string{
				"settings.index.creation_date",
				"settings.index.uuid",
				"settings.index.provided_name",
				"settings.index.version",
				"mappings._meta._transform.creation_date_in_millis",
			},
			LoadAll: loadIndices,
		},
		{
			Name:      "component_templates",
			Directory: "component_templates",
			Family:    FamilyElasticsearch,
			Endpoint:  "_component_template",
			Shape:     ShapeList,
			ListKey:   "component_templates",
			Managed:   `.resource.component_template._meta.managed == true`,
			Identity:  `.name`,
			LoadID:    `.name`,
			LoadBody:  `.component_template`,
		},
		{
			Name:      "index_templates",
			Directory: "index_templates",
			Family:    FamilyElasticsearch,
			Endpoint:  "_index_template",
			Shape:     ShapeList,
			ListKey:   "index_templates",
			Managed:   `.resource.index_template.template.mappings._meta.managed == true`,
			Identity:  `.name`,
			LoadID:    `.name`,
			LoadBody:  `.index_template`,
		},
		{
			Name:        "saved_objects",
			Directory:   "saved_objects",
			Family:      FamilyKibana,
			RecordGlob:  "*/*.json",
			CreateQuery: transport.Query{"overwrite": true, "createNewCopies": false},
			DumpAll:     dumpSavedObjects,
			LoadAll:     loadSavedObjects,
		},
		{
			Name:         "watches",
			Directory:    "watches",
			Family:       FamilyElasticsearch,
			Endpoint:     "_watcher/watch",
			ListEndpoint: "/_watcher/_query/watches",
			ListMethod:   http.MethodPost,
			Shape:        ShapeList,
			ListKey:      "watches",
			Pagination:   PaginateOffset,
			PageSize:     10,
			Identity:     `._id`,
			Body:         `.watch`,
			PrepareLoad:  restoreWatchPasswords,
		},
		{
			Name:      "roles",
			Directory: "roles",
			Family:    FamilyElasticsearch,
			Endpoint:  "/_security/role",
			Shape:     ShapeMap,
			Managed:   `.resource.metadata._reserved == true`,
		},
		{
			Name:      "role_mappings",
			Directory: "role_mappings",
			Family:    FamilyElasticsearch,
			Endpoint:  "/_security/role_mapping",
			Shape:     ShapeMap,
		},
		{
			Name:      "pipelines",
			Directory: "pipelines",
			Family:    FamilyElasticsearch,
			Endpoint:  "_ingest/pipeline",
			Shape:     ShapeMap,
			Managed:   `.resource._meta.managed == true`,
		},
		{
			Name:        "transforms",
			Directory:   "transforms",
			Family:      FamilyElasticsearch,
			Endpoint:    "_transform",
			Shape:       ShapeList,
			ListKey:     "transforms",
			Pagination:  PaginateOffset,
			PageSize:    100,
			Managed:     `.resource._meta.managed == true`,
			Identity:    `.id`,
			StripPaths:  []string{"authorization", "version", "create_time", "id"},
			CreateQuery: transport.Query{"defer_validation": true},
			DumpFinish:  dumpTransformStates,
			LoadAll:     loadTransforms,
		},
		{
			Name:       "enrich_policies",
			Directory:  "enrich_policies",
			Family:     FamilyElasticsearch,
			Endpoint:   "_enrich/policy",
			Shape:      ShapeList,
			ListKey:    "policies",
			Identity:   `.config.match.name`,
			Body:       `.config`,
			StripPaths: []string{"match.name"},
			ConflictOK: true,
			PostCreate: executeEnrichPolicy,
		},
		{
			Name:      "ilm_policies",
			Directory: "ilm_policies",
			Family:    FamilyElasticsearch,
			Endpoint:  "/_ilm/policy",
			Shape:     ShapeMap,
			StripPaths: []string{
				"version",
				"modified_date",
				"in_use_by",
			},
		},
		{
			Name:         "agent_policies",
			Directory:    "agent_policies",
			Family:       FamilyKibana,
			Endpoint:     "/api/fleet/agent_policies",
			Pagination:   PaginatePage,
			Managed:      `.resource.is_managed == true`,
			Identity:     `.name`,
			SlugName:     true,
			Experimental: true,
		},
		{
			Name:       "package_policies",
			Directory:  "package_policies",
			Family:     FamilyKibana,
			Endpoint:   "/api/fleet/package_policies",
			Pagination: PaginatePage,
			Identity:   `.name`,
			SlugName:   true,
			StripPaths: []string{
				"created_at",
				"created_by",
				"revision",
				"package.title",
			},
			Experimental: true,
		},
	}
}

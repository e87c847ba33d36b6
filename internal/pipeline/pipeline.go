package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sniffer-group/propintel-cli/internal/model"
	"github.com/sniffer-group/propintel-cli/internal/store"
)

// lenderTermsQuery asks for the full home-loan product terms of one lender.
// The numbered points line up with the extraction schema fields.
const lenderTermsQuery = "for {lender_name} home loans in India, what are: " +
	"1. the home loan interest rate, 2. the loan to value ratio, " +
	"3. the minimum credit score required, 4. the minimum and maximum loan amount, " +
	"5. the minimum and maximum loan tenure in years, 6. the typical approval time, " +
	"7. the processing fees, 8. any special offers currently running"

// Pipeline wires the search, extraction, resolution, and persistence
// stages together. The single searcher serves one-off research requests;
// the bulk searcher carries the bulk path's own API key so heavy batch
// runs cannot starve interactive requests.
type Pipeline struct {
	single  *Searcher
	bulk    *Searcher
	extract *Extractor
	resolve *Resolver
	store   store.Store
	queries map[string]string
}

// New creates a Pipeline. bulk may equal single when no separate bulk key
// is configured.
func New(single, bulk *Searcher, extract *Extractor, resolve *Resolver, st store.Store, queries map[string]string) *Pipeline {
	if bulk == nil {
		bulk = single
	}
	if queries == nil {
		queries = DefaultQueries()
	}
	return &Pipeline{
		single:  single,
		bulk:    bulk,
		extract: extract,
		resolve: resolve,
		store:   st,
		queries: queries,
	}
}

// ResearchOutcome is the result of a full property research pass. One
// request can surface several matching properties (phases of the same
// project, nearby towers with the same name).
type ResearchOutcome struct {
	Status   model.Status     `json:"status"`
	Projects []model.Property `json:"projects,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// allQueryKeys returns every configured query key in sorted order.
func (p *Pipeline) allQueryKeys() []string {
	keys := make([]string, 0, len(p.queries))
	for key := range p.queries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// approvalStatus derives the approval column from the resolved lender set.
func approvalStatus(resolved []string) string {
	if len(resolved) > 0 {
		return model.ApprovalApproved
	}
	return model.ApprovalNotApproved
}

// failureMessage summarizes per-query failures for an outcome message.
func failureMessage(failures map[string]error) string {
	keys := make([]string, 0, len(failures))
	for key := range failures {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var parts []string
	for _, key := range keys {
		parts = append(parts, key+": "+failures[key].Error())
	}
	return strings.Join(parts, "; ")
}

// ResearchProperty runs the full research flow for one property: every
// configured query, list extraction, lender resolution, and persistence.
// New properties are inserted and linked to their lenders; known ones get
// their research columns refreshed in place.
func (p *Pipeline) ResearchProperty(ctx context.Context, projectName, city string) (*ResearchOutcome, error) {
	answers, failures := p.single.Dispatch(ctx, p.queries, p.allQueryKeys(), projectName, city)

	corpus := BuildCorpus(answers)
	if corpus == "" {
		if len(failures) > 0 {
			return &ResearchOutcome{Status: model.StatusError, Message: failureMessage(failures)}, nil
		}
		return &ResearchOutcome{Status: model.StatusNoData, Message: "no search results for property"}, nil
	}

	found, records, err := p.extract.ExtractProperties(ctx, projectName, city, corpus)
	if err != nil {
		return nil, err
	}
	if !found || len(records) == 0 {
		return &ResearchOutcome{Status: model.StatusNotFound, Message: "property not found in search results"}, nil
	}

	registry, err := p.store.FetchLenders(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(registry))
	idsByName := make(map[string]string, len(registry))
	for i, l := range registry {
		names[i] = l.LenderName
		idsByName[l.LenderName] = l.ID
	}

	var saved []model.Property
	for _, rec := range records {
		resolved := p.resolve.Resolve(rec.Lenders, names)

		prop := rec.ToProperty()
		prop.Lenders = resolved
		prop.ApprovalStatus = approvalStatus(resolved)

		persisted, err := p.persistResearch(ctx, &prop, resolved, idsByName)
		if err != nil {
			return nil, err
		}
		saved = append(saved, *persisted)
	}

	return &ResearchOutcome{Status: model.StatusSuccess, Projects: saved}, nil
}

// persistResearch writes one researched property: an update in place when
// the natural key already exists, otherwise an insert plus lender links.
// Lender links are created only on insert; updates never touch identity.
func (p *Pipeline) persistResearch(ctx context.Context, prop *model.Property, resolved []string, idsByName map[string]string) (*model.Property, error) {
	existing, err := p.store.FindProject(ctx, prop.ProjectName, prop.City)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		prop.ID = existing.ID
		prop.ProjectName = existing.ProjectName
		prop.PropertyType = existing.PropertyType
		prop.BuilderName = existing.BuilderName
		prop.City = existing.City
		prop.CreatedAt = existing.CreatedAt
		if err := p.store.UpdateProjectResearch(ctx, prop); err != nil {
			return nil, err
		}
		zap.L().Info("refreshed property research",
			zap.String("id", prop.ID),
			zap.String("project", prop.ProjectName),
			zap.String("city", prop.City))
		return prop, nil
	}

	prop.ID = uuid.New().String()
	if err := p.store.InsertProject(ctx, prop); err != nil {
		return nil, err
	}

	var lenderIDs []string
	for _, name := range resolved {
		if id, ok := idsByName[name]; ok {
			lenderIDs = append(lenderIDs, id)
		}
	}
	if err := p.store.LinkLenders(ctx, prop.ID, lenderIDs); err != nil {
		return nil, err
	}

	zap.L().Info("saved new property",
		zap.String("id", prop.ID),
		zap.String("project", prop.ProjectName),
		zap.String("city", prop.City),
		zap.Int("lenders", len(lenderIDs)))
	return prop, nil
}

// price returns the extracted price text for a source.
func (r *PropertyRecord) price(source string) string {
	switch source {
	case model.SourceMagicbricks:
		return r.MagicbricksPrice
	case model.SourceNobroker:
		return r.NobrokerPrice
	case model.Source99Acres:
		return r.Acres99Price
	case model.SourceHousing:
		return r.HousingPrice
	case model.SourceGoogle:
		return r.GooglePrice
	default:
		return ""
	}
}

// RefreshPricesOnly re-queries the requested price sources for a known
// property and updates only the matching price columns. Identity, approval
// status, and lender links stay untouched.
func (p *Pipeline) RefreshPricesOnly(ctx context.Context, ref model.ProjectRef, sources []string) *model.RefreshOutcome {
	// Callers may pass only an id. Hydrate name and city from the store
	// before rendering queries; dispatching with empty placeholders would
	// burn provider quota on meaningless prompts.
	if ref.ProjectName == "" || ref.City == "" {
		if ref.ID == "" {
			return &model.RefreshOutcome{Status: model.StatusError, Message: "pipeline: project ref carries neither id nor name and city"}
		}
		prop, err := p.store.GetProject(ctx, ref.ID)
		if err != nil {
			return &model.RefreshOutcome{Status: model.StatusError, Message: err.Error()}
		}
		if prop == nil {
			return &model.RefreshOutcome{Status: model.StatusNotFound, Message: "property row not found"}
		}
		ref.ProjectName = prop.ProjectName
		ref.City = prop.City
	}

	keys := priceQueryKeys(model.FilterPriceSources(sources))

	answers, failures := p.bulk.Dispatch(ctx, p.queries, keys, ref.ProjectName, ref.City)

	corpus := BuildCorpus(answers)
	if corpus == "" {
		if len(failures) > 0 {
			return &model.RefreshOutcome{Status: model.StatusError, Message: failureMessage(failures)}
		}
		return &model.RefreshOutcome{Status: model.StatusNoData, Message: "no search results for property"}
	}

	rec, err := p.extract.ExtractProperty(ctx, ref.ProjectName, ref.City, corpus)
	if err != nil {
		return &model.RefreshOutcome{Status: model.StatusError, Message: err.Error()}
	}
	if !rec.PropertyFound {
		return &model.RefreshOutcome{Status: model.StatusNotFound, Message: "property not found in search results"}
	}

	columns := make(map[string]string)
	for _, source := range model.FilterPriceSources(sources) {
		if value := strings.TrimSpace(rec.price(source)); value != "" {
			columns[model.PriceColumns[source]] = titleValue(value)
		}
	}
	if len(columns) == 0 {
		return &model.RefreshOutcome{Status: model.StatusNoData, Message: "no prices found for requested sources"}
	}

	if err := p.store.UpdateProjectPrices(ctx, ref.ID, columns); err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return &model.RefreshOutcome{Status: model.StatusNotFound, Message: "property row not found"}
		}
		return &model.RefreshOutcome{Status: model.StatusError, Message: err.Error()}
	}

	updated := make([]string, 0, len(columns))
	for col := range columns {
		updated = append(updated, col)
	}
	sort.Strings(updated)

	zap.L().Info("updated property prices",
		zap.String("id", ref.ID),
		zap.String("project", ref.ProjectName),
		zap.Strings("columns", updated))
	return &model.RefreshOutcome{Status: model.StatusSuccess, UpdatedColumns: updated}
}

// RefreshLenderTerms re-queries one lender's home-loan terms and persists
// them over the registry row. The canonical name and ID never change.
func (p *Pipeline) RefreshLenderTerms(ctx context.Context, lender model.Lender) (*model.Lender, error) {
	prompt := strings.ReplaceAll(lenderTermsQuery, "{lender_name}", lender.LenderName)

	text, err := p.bulk.Search(ctx, "lender_terms", prompt)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, eris.Errorf("pipeline: no search results for lender %s", lender.LenderName)
	}

	terms, err := p.extract.ExtractLenderTerms(ctx, lender.LenderName, text)
	if err != nil {
		return nil, err
	}

	terms.ID = lender.ID
	terms.LenderName = lender.LenderName
	if err := p.store.UpdateLenderTerms(ctx, terms); err != nil {
		return nil, err
	}

	zap.L().Info("refreshed lender terms",
		zap.String("id", terms.ID),
		zap.String("lender", terms.LenderName))
	return terms, nil
}

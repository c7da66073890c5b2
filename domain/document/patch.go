package document

// Patch is a partial update to a stored document.
// Fields that were not set leave the stored value unchanged.
type Patch struct {
	title     *string
	content   *string
	category  *string
	embedding []float64
	extra     map[string]any
}

// PatchOption configures a Patch.
type PatchOption func(*Patch)

// WithTitle sets a new title.
func WithTitle(title string) PatchOption {
	return func(p *Patch) { p.title = &title }
}

// WithContent sets new content. A change of content causes the embedding to be regenerated.
func WithContent(content string) PatchOption {
	return func(p *Patch) { p.content = &content }
}

// WithCategory sets a new category.
func WithCategory(category string) PatchOption {
	return func(p *Patch) { p.category = &category }
}

// WithEmbedding supplies a precomputed embedding.
func WithEmbedding(embedding []float64) PatchOption {
	return func(p *Patch) { p.embedding = cloneVector(embedding) }
}

// WithExtra sets an additional field. A nil value removes the field.
func WithExtra(key string, value any) PatchOption {
	return func(p *Patch) {
		if p.extra == nil {
			p.extra = make(map[string]any)
		}
		p.extra[key] = value
	}
}

// NewPatch creates a Patch from options.
func NewPatch(opts ...PatchOption) Patch {
	var p Patch
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Title returns the new title, if set.
func (p Patch) Title() (string, bool) { return deref(p.title) }

// Content returns the new content, if set.
func (p Patch) Content() (string, bool) { return deref(p.content) }

// Category returns the new category, if set.
func (p Patch) Category() (string, bool) { return deref(p.category) }

// Embedding returns the supplied embedding, nil if none.
func (p Patch) Embedding() []float64 { return cloneVector(p.embedding) }

// Extra returns the additional fields to merge.
func (p Patch) Extra() map[string]any { return cloneExtra(p.extra) }

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.title == nil && p.content == nil && p.category == nil &&
		len(p.embedding) == 0 && len(p.extra) == 0
}

func deref(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}

package category

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/product"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrMaxDepthExceeded  = errors.New("category tree depth limit exceeded")
	ErrCircularReference = errors.New("category cannot be its own ancestor")
	ErrNotEmpty          = errors.New("category still has descendants or products")
)

// ProductCounter reports how many live products reference a category.
type ProductCounter interface {
	CountByCategory(ctx context.Context, categoryID primitive.ObjectID) (int64, error)
}

type Service interface {
	Create(ctx context.Context, name, description string, parentID *primitive.ObjectID) (*Category, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*Category, error)
	List(ctx context.Context) ([]Category, error)
	Rename(ctx context.Context, id primitive.ObjectID, name, description string) (*Category, error)
	Reparent(ctx context.Context, id primitive.ObjectID, newParentID *primitive.ObjectID) (*Category, error)
	CanDelete(ctx context.Context, id primitive.ObjectID) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type service struct {
	repo     Repository
	products ProductCounter
}

func NewService(repo Repository, products ProductCounter) Service {
	return &service{repo: repo, products: products}
}

func (s *service) Create(ctx context.Context, name, description string, parentID *primitive.ObjectID) (*Category, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}

	c := &Category{
		Name:        name,
		Description: description,
		Path:        []primitive.ObjectID{},
	}

	if parentID != nil {
		parent, err := s.repo.GetByID(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		c.ParentID = parentID
		c.Level = parent.Level + 1
		if c.Level > MaxDepth {
			return nil, fmt.Errorf("%w: level %d exceeds maximum %d", ErrMaxDepthExceeded, c.Level, MaxDepth)
		}
		c.Path = append(append([]primitive.ObjectID{}, parent.Path...), parent.ID)
	}

	slug, err := uniqueSlug(ctx, s.repo, name, primitive.NilObjectID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate category slug: %w", err)
	}
	c.Slug = slug

	if _, err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	log.Info().Str("category_id", c.ID.Hex()).Str("slug", c.Slug).Int("level", c.Level).
		Msg("service: category created")
	return c, nil
}

func (s *service) GetByID(ctx context.Context, id primitive.ObjectID) (*Category, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context) ([]Category, error) {
	return s.repo.List(ctx)
}

func (s *service) Rename(ctx context.Context, id primitive.ObjectID, name, description string) (*Category, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if name != c.Name {
		slug, err := uniqueSlug(ctx, s.repo, name, id)
		if err != nil {
			return nil, fmt.Errorf("service: failed to regenerate category slug: %w", err)
		}
		c.Slug = slug
	}
	c.Name = name
	c.Description = description

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Reparent moves a category under a new parent. Before applying it
// walks the new parent's ancestor chain; finding the moved node there
// means the move would close a cycle, and the whole operation is
// rejected with the tree untouched.
//
// Only the moved node's own level and path are recomputed. Descendants
// keep their old level/path, matching the historical behavior of this
// operation; a subtree move therefore leaves stale ancestor paths below
// the moved node.
func (s *service) Reparent(ctx context.Context, id primitive.ObjectID, newParentID *primitive.ObjectID) (*Category, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if newParentID == nil {
		c.ParentID = nil
		c.Level = 0
		c.Path = []primitive.ObjectID{}
		if err := s.repo.Update(ctx, c); err != nil {
			return nil, err
		}
		return c, nil
	}

	if *newParentID == id {
		return nil, fmt.Errorf("%w: category %s", ErrCircularReference, id.Hex())
	}

	parent, err := s.repo.GetByID(ctx, *newParentID)
	if err != nil {
		return nil, err
	}

	if err := s.checkAncestry(ctx, parent, id); err != nil {
		return nil, err
	}

	newLevel := parent.Level + 1
	if newLevel > MaxDepth {
		return nil, fmt.Errorf("%w: level %d exceeds maximum %d", ErrMaxDepthExceeded, newLevel, MaxDepth)
	}

	c.ParentID = newParentID
	c.Level = newLevel
	c.Path = append(append([]primitive.ObjectID{}, parent.Path...), parent.ID)

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}

	log.Info().Str("category_id", id.Hex()).Str("new_parent_id", newParentID.Hex()).
		Msg("service: category reparented")
	return c, nil
}

// checkAncestry rejects with ErrCircularReference when moved appears
// anywhere in parent's ancestor chain. The denormalized path answers
// this directly; the walk up the parent links backs it up in case the
// path is stale.
func (s *service) checkAncestry(ctx context.Context, parent *Category, moved primitive.ObjectID) error {
	if parent.inPath(moved) {
		return fmt.Errorf("%w: %s is an ancestor of the requested parent", ErrCircularReference, moved.Hex())
	}

	cur := parent
	for depth := 0; cur.ParentID != nil; depth++ {
		if depth > MaxDepth {
			return fmt.Errorf("service: ancestor chain of %s exceeds maximum depth", parent.ID.Hex())
		}
		next, err := s.repo.GetByID(ctx, *cur.ParentID)
		if err != nil {
			return err
		}
		if next.ID == moved {
			return fmt.Errorf("%w: %s is an ancestor of the requested parent", ErrCircularReference, moved.Hex())
		}
		cur = next
	}
	return nil
}

// CanDelete allows deletion only for leaf categories with no live
// products attached.
func (s *service) CanDelete(ctx context.Context, id primitive.ObjectID) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}

	descendants, err := s.repo.CountDescendants(ctx, id)
	if err != nil {
		return err
	}
	if descendants > 0 {
		return fmt.Errorf("%w: %d descendant categories", ErrNotEmpty, descendants)
	}

	products, err := s.products.CountByCategory(ctx, id)
	if err != nil {
		return err
	}
	if products > 0 {
		return fmt.Errorf("%w: %d products attached", ErrNotEmpty, products)
	}
	return nil
}

func (s *service) Delete(ctx context.Context, id primitive.ObjectID) error {
	if err := s.CanDelete(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	log.Info().Str("category_id", id.Hex()).Msg("service: category soft-deleted")
	return nil
}

type slugChecker interface {
	SlugExists(ctx context.Context, slug string, exclude primitive.ObjectID) (bool, error)
}

func uniqueSlug(ctx context.Context, repo slugChecker, name string, exclude primitive.ObjectID) (string, error) {
	base := product.Slugify(name)
	if base == "" {
		base = "category"
	}

	candidate := base
	for i := 2; ; i++ {
		exists, err := repo.SlugExists(ctx, candidate, exclude)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

package model

import (
	"fmt"

	"github.com/and161185/allegro-webapi/internal/errs"
	"github.com/and161185/allegro-webapi/internal/rpc"
)

// Category is one element of a category path.
type Category struct {
	ID       int64
	Name     string
	ParentID int64
}

// NewCategoryPath flattens a doGetCategoryPath response, root first.
func NewCategoryPath(raw rpc.Result) []Category {
	items := raw.Items("categoryPath")
	out := make([]Category, 0, len(items))
	for _, c := range items {
		out = append(out, Category{
			ID:       c.Int64("catId"),
			Name:     c.String("catName"),
			ParentID: c.Int64("catParent"),
		})
	}
	return out
}

// FindCategory picks the path element with the requested id.
func FindCategory(path []Category, id int64) (*Category, error) {
	for i := range path {
		if path[i].ID == id {
			c := path[i]
			return &c, nil
		}
	}
	return nil, fmt.Errorf("category %d: %w", id, errs.ErrNotFound)
}

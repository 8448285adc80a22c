package item

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/Strob0t/collectibles/internal/domain"
)

// Filter selects items by name, description keyword and price range.
// Zero-value fields match everything.
type Filter struct {
	Name        string
	Description string
	MinPrice    *float64
	MaxPrice    *float64
}

// ParseFilter reads name, description, min and max from query values.
func ParseFilter(q url.Values) (Filter, error) {
	f := Filter{
		Name:        strings.TrimSpace(q.Get("name")),
		Description: strings.TrimSpace(q.Get("description")),
	}

	var err error
	if f.MinPrice, err = parseBound(q.Get("min"), "min"); err != nil {
		return Filter{}, err
	}
	if f.MaxPrice, err = parseBound(q.Get("max"), "max"); err != nil {
		return Filter{}, err
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return Filter{}, fmt.Errorf("%w: min must not exceed max", domain.ErrValidation)
	}
	return f, nil
}

func parseBound(raw, name string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number", domain.ErrValidation, name)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: %s must be a finite number", domain.ErrValidation, name)
	}
	return &v, nil
}

// Matches reports whether it satisfies every set criterion.
// Text criteria are case-insensitive substring matches.
func (f Filter) Matches(it Item) bool {
	if f.Name != "" && !containsFold(it.Name, f.Name) {
		return false
	}
	if f.Description != "" && !containsFold(it.Description, f.Description) {
		return false
	}
	if f.MinPrice != nil && it.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && it.Price > *f.MaxPrice {
		return false
	}
	return true
}

// Apply returns the matching items in their original order.
func (f Filter) Apply(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for i := range items {
		if f.Matches(items[i]) {
			out = append(out, items[i])
		}
	}
	return out
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

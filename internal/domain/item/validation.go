package item

import (
	"fmt"
	"math"
	"strings"

	"github.com/Strob0t/collectibles/internal/domain"
)

// MaxNameLength is the longest accepted item name.
const MaxNameLength = 200

// ValidateCreateRequest checks required fields and value ranges.
// Returns a domain.ErrValidation-wrapped error describing the first problem.
func ValidateCreateRequest(req *CreateRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	if err := validateName(req.Name); err != nil {
		return err
	}
	return validatePrice(req.Price)
}

// ValidateUpdateRequest checks the fields present in a partial update.
func ValidateUpdateRequest(req *UpdateRequest) error {
	if req.Name == nil && req.Description == nil && req.Price == nil {
		return fmt.Errorf("%w: at least one field must be set", domain.ErrValidation)
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		req.Name = &trimmed
		if err := validateName(trimmed); err != nil {
			return err
		}
	}
	if req.Price != nil {
		if err := validatePrice(*req.Price); err != nil {
			return err
		}
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: name too long (max %d chars)", domain.ErrValidation, MaxNameLength)
	}
	return nil
}

func validatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return fmt.Errorf("%w: price must be a finite number", domain.ErrValidation)
	}
	if price < 0 {
		return fmt.Errorf("%w: price must not be negative", domain.ErrValidation)
	}
	return nil
}

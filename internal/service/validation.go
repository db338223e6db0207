package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	MaxTitleLength    = 200
	MaxTagLength      = 64
	MaxCategoryLength = 64
)

var mimeTypePattern = regexp.MustCompile(`^[\w.+-]+/[\w.+-]+$`)

var notBlank = validation.By(func(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return errors.New("must not be blank")
	}
	return nil
})

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// Validate checks the metadata supplied at creation.
func (m CreateMetadata) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Title, validation.Required, notBlank, validation.RuneLength(1, MaxTitleLength)),
		validation.Field(&m.MimeType,
			validation.Required,
			validation.Match(mimeTypePattern).Error("mime type is not valid"),
		),
		validation.Field(&m.Tags, validation.Each(validation.Required, notBlank, validation.RuneLength(1, MaxTagLength))),
	)
}

// validate checks the content stream; maxSize <= 0 disables the upper bound.
func (c CreateContent) validate(maxSize int64) error {
	sizeRules := []validation.Rule{validation.Required, validation.Min(int64(1))}
	if maxSize > 0 {
		sizeRules = append(sizeRules, validation.Max(maxSize).Error(fmt.Sprintf("must be no greater than %d bytes", maxSize)))
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.Reader, validation.NotNil),
		validation.Field(&c.Size, sizeRules...),
		validation.Field(&c.OriginalFilename, validation.Required),
	)
}

// Validate checks a check-in request.
func (r CheckInRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CategoryCode, validation.Required, notBlank, validation.RuneLength(1, MaxCategoryLength)),
		validation.Field(&r.Version, validation.Min(int64(0))),
	)
}

// Validate checks a full metadata update.
func (r UpdateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, notBlank, validation.RuneLength(1, MaxTitleLength)),
		validation.Field(&r.Tags, validation.NotNil, validation.Each(validation.Required, notBlank, validation.RuneLength(1, MaxTagLength))),
		validation.Field(&r.Version, validation.Min(int64(0))),
	)
}

package vector

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/schema"
	"github.com/weaviate/weaviate/entities/models"
)

// WeaviateSchema implements SchemaClient on the Weaviate schema API.
type WeaviateSchema struct {
	api *schema.API
}

func NewWeaviateSchema(client *weaviate.Client) *WeaviateSchema {
	return &WeaviateSchema{api: client.Schema()}
}

func (s *WeaviateSchema) ClassExists(ctx context.Context, className string) (bool, error) {
	ok, err := s.api.ClassExistenceChecker().WithClassName(className).Do(ctx)
	if err != nil {
		return false, fmt.Errorf("check class %s: %w", className, err)
	}
	return ok, nil
}

func (s *WeaviateSchema) CreateClass(ctx context.Context, class *models.Class) error {
	if err := s.api.ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", class.Class, err)
	}
	return nil
}

func (s *WeaviateSchema) GetClass(ctx context.Context, className string) (*models.Class, error) {
	class, err := s.api.ClassGetter().WithClassName(className).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("get class %s: %w", className, err)
	}
	return class, nil
}

func (s *WeaviateSchema) AddProperty(ctx context.Context, className string, property *models.Property) error {
	err := s.api.PropertyCreator().WithClassName(className).WithProperty(property).Do(ctx)
	if err != nil {
		return fmt.Errorf("add property %s.%s: %w", className, property.Name, err)
	}
	return nil
}

func (s *WeaviateSchema) DeleteClass(ctx context.Context, className string) error {
	if err := s.api.ClassDeleter().WithClassName(className).Do(ctx); err != nil {
		return fmt.Errorf("delete class %s: %w", className, err)
	}
	return nil
}

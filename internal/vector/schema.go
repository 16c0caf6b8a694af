// Package vector manages the Weaviate class that mirrors the local index.
package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
	DeleteClass(ctx context.Context, className string) error
}

// Properties of a mirrored chunk. Property names follow Weaviate's
// lowerCamel convention; metadata keys map onto them one to one.
func Properties() []*models.Property {
	return []*models.Property{
		{Name: "chunkId", DataType: []string{"text"}, Tokenization: "field"},
		{Name: "offset", DataType: []string{"int"}},
		{Name: "text", DataType: []string{"text"}},
		{Name: "file", DataType: []string{"text"}, Tokenization: "field"},
		{Name: "type", DataType: []string{"text"}, Tokenization: "field"},
		{Name: "name", DataType: []string{"text"}, Tokenization: "field"},
	}
}

// EnsureSchema creates className when missing, or adds any property the
// existing class lacks. Vectors are supplied by the caller and compared with
// squared L2 distance, like the local index.
func EnsureSchema(ctx context.Context, client SchemaClient, className string) error {
	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return err
	}

	properties := Properties()

	if !exists {
		class := &models.Class{
			Class:             className,
			Description:       "A chunk of the indexed repository",
			Vectorizer:        "none",
			VectorIndexConfig: map[string]interface{}{"distance": "l2-squared"},
			Properties:        properties,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, className)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, className, p); err != nil {
				return err
			}
		}
	}

	return nil
}

package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/glorpus-work/modelkeep/pkg/errutils"
	"github.com/glorpus-work/modelkeep/pkg/model"
)

// ScriptTimeout bounds a single run of a catalog recommendation script.
const ScriptTimeout = 2 * time.Second

// Recommend picks a descriptor id for a device with ramGB of memory. A catalog may
// carry a tengo script that receives ram_gb and models (a list of maps with id,
// name, size_gb, parameters_b and ram_required_gb) and assigns the chosen id to the
// variable id. Without a script the largest model that fits wins. When nothing
// fits, or the script leaves id empty, the catalog default is returned.
func Recommend(ctx context.Context, c *model.Catalog, ramGB float64) (string, error) {
	var (
		id  string
		err error
	)
	if c.Recommend != "" {
		id, err = runScript(ctx, c, ramGB)
		if err != nil {
			return "", err
		}
	} else {
		id = largestFitting(c, ramGB)
	}
	if id == "" {
		return c.DefaultID, nil
	}
	if _, ok := c.Lookup(id); !ok {
		return "", errutils.ErrDescriptorNotFoundWithID(id)
	}
	return id, nil
}

func largestFitting(c *model.Catalog, ramGB float64) string {
	if ramGB <= 0 {
		return ""
	}
	best, bestParams := "", -1.0
	for _, id := range c.IDs() {
		d := c.Descriptors[id]
		if d.RAMRequiredGB <= ramGB && d.ParametersB > bestParams {
			best, bestParams = id, d.ParametersB
		}
	}
	return best
}

func runScript(ctx context.Context, c *model.Catalog, ramGB float64) (string, error) {
	script := tengo.NewScript([]byte(c.Recommend))
	script.SetImports(stdlib.GetModuleMap("math", "text"))

	models := make([]interface{}, 0, len(c.Descriptors))
	for _, id := range c.IDs() {
		d := c.Descriptors[id]
		models = append(models, map[string]interface{}{
			"id":              id,
			"name":            d.Name,
			"size_gb":         d.SizeGB,
			"parameters_b":    d.ParametersB,
			"ram_required_gb": d.RAMRequiredGB,
		})
	}

	vars := map[string]interface{}{
		"ram_gb": ramGB,
		"models": models,
		"id":     "",
	}
	for k, v := range vars {
		if err := script.Add(k, v); err != nil {
			return "", fmt.Errorf("failed to add %s to script: %w", k, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, ScriptTimeout)
	defer cancel()
	compiled, err := script.RunContext(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errutils.ErrRecommendScript, err)
	}

	out := compiled.Get("id")
	if out == nil || out.IsUndefined() {
		return "", nil
	}
	if _, ok := out.Value().(string); !ok {
		return "", fmt.Errorf("%w: id must be a string, got %s", errutils.ErrRecommendScript, out.ValueType())
	}
	return out.String(), nil
}

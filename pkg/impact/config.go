package impact

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/validate"
)

// Config is the `impact:` section of the YAML configuration.
type Config struct {
	ProductWeight  float64 `yaml:"product_weight" validate:"gte=0"`
	SemanticWeight float64 `yaml:"semantic_weight" validate:"gte=0"`

	NotableThreshold             float64 `yaml:"notable_threshold" validate:"gte=0,lte=1"`
	HighPriorityNotableThreshold float64 `yaml:"high_priority_notable_threshold" validate:"gte=0,lte=1"`

	// ZeroOverlapCap bounds the score of an item that shares no product
	// with a customer who declares products. Keep it below both notable
	// thresholds so semantic similarity alone never makes an item notable.
	ZeroOverlapCap float64 `yaml:"zero_overlap_cap" validate:"gte=0,lte=1"`
}

func DefaultConfig() Config {
	return Config{
		ProductWeight:                0.6,
		SemanticWeight:               0.4,
		NotableThreshold:             0.3,
		HighPriorityNotableThreshold: 0.2,
		ZeroOverlapCap:               0.15,
	}
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.ProductWeight+c.SemanticWeight <= 0 {
		return goerr.Wrap(model.ErrInvalidArgument, "impact weights must have a positive sum",
			goerr.V("product_weight", c.ProductWeight), goerr.V("semantic_weight", c.SemanticWeight))
	}
	return nil
}

// weights returns the product and semantic weights scaled to sum to 1.
func (c Config) weights() (float64, float64) {
	sum := c.ProductWeight + c.SemanticWeight
	return c.ProductWeight / sum, c.SemanticWeight / sum
}

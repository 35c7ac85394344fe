package report

import (
	"time"

	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/validate"
)

// Config is the `report:` section of the YAML configuration.
type Config struct {
	// Window is the length of the period a report covers, ending now.
	Window  time.Duration `yaml:"window" validate:"gt=0"`
	Workers int           `yaml:"workers" validate:"gte=1,lte=64"`
	// LockTTL bounds how long a crashed run can block its customer.
	LockTTL time.Duration `yaml:"lock_ttl" validate:"gt=0"`
	// OtherLimit caps the non-notable items listed in a report body.
	OtherLimit int `yaml:"other_limit" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		Window:     7 * 24 * time.Hour,
		Workers:    4,
		LockTTL:    10 * time.Minute,
		OtherLimit: 10,
	}
}

func (c Config) Validate() error {
	return validate.Struct(c)
}

// WindowEnding returns the window of the given length ending at end.
func WindowEnding(end time.Time, length time.Duration) model.ReportWindow {
	end = end.UTC()
	return model.ReportWindow{Start: end.Add(-length), End: end}
}

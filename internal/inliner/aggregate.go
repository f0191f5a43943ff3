package inliner

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// AggregateCSS assembles the CSS for one conversion: registered files, then
// raw CSS, then (with extraction enabled) CSS found in markup. Later groups
// win ties at equal specificity. The returned markup has extracted elements
// removed when removal is enabled.
func (c *Converter) AggregateCSS(markup string) (string, string) {
	remaining, css, err := c.aggregate(markup)
	if err != nil {
		c.log.Debug("Some CSS sources could not be read",
			zap.Int("failures", len(multierr.Errors(err))),
			zap.Error(err))
	}
	return remaining, css
}

func (c *Converter) aggregate(markup string) (string, string, error) {
	var errs error

	files := make([]string, 0, len(c.files))
	for _, f := range c.files {
		css, err := c.readCSS(f)
		if err != nil {
			errs = multierr.Append(errs, err)
		}
		files = append(files, css)
	}

	groups := []string{joinCSS(files...), joinCSS(c.raw...)}

	if c.extractHTMLCSS {
		remaining, extracted, err := c.extract(markup)
		errs = multierr.Append(errs, err)
		markup = remaining
		groups = append(groups, extracted)
	}

	return markup, joinCSS(groups...), errs
}

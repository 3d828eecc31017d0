package document

import (
	"fmt"
	"sync"

	"github.com/mattetti/filebuffer"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

var disableConfigDir sync.Once

// Info summarises the structure of a document
type Info struct {
	Version   string   `json:"version,omitempty"`
	PageCount int      `json:"page_count"`
	Problems  []string `json:"problems,omitempty"`
}

// Valid reports whether the structural check found nothing to complain about
func (i Info) Valid() bool {
	return len(i.Problems) == 0
}

// Preflight runs a relaxed structural validation. Problems are informational;
// a document that fails preflight may still carry valid signatures.
func Preflight(data []byte) (info Info) {
	disableConfigDir.Do(api.DisableConfigDir)

	defer func() {
		if r := recover(); r != nil {
			info.Problems = append(info.Problems, fmt.Sprintf("pdf reader panic: %v", r))
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(filebuffer.New(data), conf)
	if err != nil {
		info.Problems = append(info.Problems, err.Error())
		return info
	}

	if ctx.HeaderVersion != nil {
		info.Version = ctx.HeaderVersion.String()
	}

	if err := api.ValidateContext(ctx); err != nil {
		log.Debug().Err(err).Msg("preflight validation failed")
		info.Problems = append(info.Problems, err.Error())
	}
	info.PageCount = ctx.PageCount

	return info
}

// Preflight validates the loaded document
func (d *Document) Preflight() Info {
	return Preflight(d.data)
}

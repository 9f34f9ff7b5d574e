// naga.go: best-effort WGSL entry-point reflection. When the
// interception layer passes shader source as WGSL text rather than
// opaque SPIR-V bytes, Catalog reflects entry-point names and stage
// kinds from it instead of requiring the caller to supply them
// redundantly. Grounded on the teacher's hal/gles/shader.go and
// hal/dx12/device.go, both of which run naga.Parse -> naga.Lower and
// then walk irModule.EntryPoints for (Name, Stage) pairs.
package catalog

import (
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// NagaReflector reflects entry points out of WGSL source. Binary SPIR-V
// always falls back to the raw-hash path regardless of whether a
// reflector is configured.
type NagaReflector interface {
	ReflectEntryPoints(wgsl string) ([]ReflectedEntryPoint, error)
}

// nagaReflector is the real implementation, backed by github.com/gogpu/naga.
type nagaReflector struct{}

// NewNagaReflector returns the production NagaReflector.
func NewNagaReflector() NagaReflector { return nagaReflector{} }

func (nagaReflector) ReflectEntryPoints(wgsl string) ([]ReflectedEntryPoint, error) {
	ast, err := naga.Parse(wgsl)
	if err != nil {
		return nil, err
	}
	module, err := naga.Lower(ast)
	if err != nil {
		return nil, err
	}

	eps := make([]ReflectedEntryPoint, 0, len(module.EntryPoints))
	for _, ep := range module.EntryPoints {
		eps = append(eps, ReflectedEntryPoint{Name: ep.Name, Stage: mapNagaStage(ep.Stage)})
	}
	return eps, nil
}

func mapNagaStage(s ir.ShaderStage) ShaderStage {
	switch s {
	case ir.StageVertex:
		return StageVertex
	case ir.StageFragment:
		return StageFragment
	case ir.StageCompute:
		return StageCompute
	default:
		return StageCompute
	}
}

package bridge

import (
	"fmt"

	"github.com/reglet-dev/flowgate/internal/domain/capability"
	"github.com/reglet-dev/flowgate/internal/domain/permissions"
	"github.com/reglet-dev/flowgate/internal/domain/values"
)

// DefaultFunctionName is used when neither a manifest nor extraction finds
// any function in a bundle.
const DefaultFunctionName = "default"

// BuildPackage describes an installed bundle as a capability package.
// Every function requires Execute with no resource constraint plus any
// permission the manifest declares for it.
func BuildPackage(id values.PluginPackageID, installDir, bundle string, manifest *Manifest) (capability.Package, error) {
	var names []string
	if manifest != nil {
		for _, fn := range manifest.Functions {
			names = append(names, fn.Name)
		}
	}
	if len(names) == 0 {
		names = ExtractFunctionNames(bundle)
	}
	if len(names) == 0 {
		names = []string{DefaultFunctionName}
	}

	pkg := capability.Package{
		ID:          id.Namespace(),
		DisplayName: id.Package(),
		Namespace:   id.Namespace(),
		Provenance: capability.ExternalSource{
			InstallPath: installDir,
			AuthorID:    id.Author(),
			Version:     id.Version(),
			BundleText:  bundle,
		},
	}
	if manifest != nil {
		pkg.Description = manifest.Description
		if manifest.Name != "" {
			pkg.DisplayName = manifest.Name
		}
	}

	for _, name := range names {
		fn := capability.Function{
			ID:          id.FunctionID(name),
			Name:        name,
			DisplayName: name,
			Required:    permissions.NewSet(permissions.New(permissions.KindExecute)),
			Invocation: capability.External{
				Descriptor: capability.BridgeDescriptor{
					PluginID: id.String(),
					FuncName: name,
				},
			},
		}

		if manifest != nil {
			if decl, ok := manifest.Function(name); ok {
				extra, err := decl.RequiredPermissions()
				if err != nil {
					return capability.Package{}, fmt.Errorf("plugin %s: %w", id, err)
				}
				fn.Required = append(fn.Required, extra...)
				fn.Description = decl.Description
				if decl.DisplayName != "" {
					fn.DisplayName = decl.DisplayName
				}
				params := decl.ParameterNames()
				fn.Invocation = capability.External{
					Descriptor: capability.BridgeDescriptor{
						PluginID:   id.String(),
						FuncName:   name,
						ParamNames: params,
					},
				}
				fn.ArgumentDoc = parameterDoc(decl.Parameters)
				fn.ReturnDoc = parameterDoc(decl.Returns)
			}
		}

		pkg.Functions = append(pkg.Functions, fn)
	}
	return pkg, nil
}

func parameterDoc(params []ManifestParameter) string {
	doc := ""
	for i, p := range params {
		if i > 0 {
			doc += ", "
		}
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", p.Idx)
		}
		doc += name
		if p.Type != "" {
			doc += ": " + p.Type
		}
	}
	return doc
}

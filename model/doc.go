// Package model defines provider metadata, the ProviderError taxonomy and a
// deterministic MockModel for tests. The provider contract itself
// (core.Provider) lives in the core package alongside the other domain
// interfaces; concrete vendor adapters live in sub-packages
// (model/anthropic, model/openai) so importing one vendor SDK never drags in
// another.
package model

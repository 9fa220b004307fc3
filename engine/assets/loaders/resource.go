package loaders

/** @brief What a file on disk decodes into. */
type ResourceType uint8

const (
	ResourceTypeNone ResourceType = iota
	/** @brief Decoded pixels, Data is a metadata.Image. */
	ResourceTypeImage
	/** @brief A bitmap font descriptor, Data is a *FontData. */
	ResourceTypeFont
	/** @brief SPIR-V bytecode, Data is a []uint32. */
	ResourceTypeShader
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeImage:
		return "image"
	case ResourceTypeFont:
		return "font"
	case ResourceTypeShader:
		return "shader"
	}
	return "none"
}

type Resource struct {
	Name     string
	FullPath string
	Type     ResourceType
	DataSize uint64
	Data     any
}

// Loader decodes one file. Loaders are safe for concurrent use.
type Loader interface {
	Load(path string) (*Resource, error)
}

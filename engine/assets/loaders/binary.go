package loaders

import (
	"fmt"
	"os"
)

// ShaderLoader reads compiled SPIR-V modules.
type ShaderLoader struct{}

const spirvMagic = 0x07230203

func (sl *ShaderLoader) Load(path string) (*Resource, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("%s: size %d is not a multiple of 4", path, len(buf))
	}
	code := bytesToBytecode(buf)
	if len(code) == 0 || code[0] != spirvMagic {
		return nil, fmt.Errorf("%s: not a SPIR-V module", path)
	}
	return &Resource{
		Name:     nameOf(path),
		FullPath: path,
		Type:     ResourceTypeShader,
		DataSize: uint64(len(buf)),
		Data:     code,
	}, nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}
	return byteCode
}

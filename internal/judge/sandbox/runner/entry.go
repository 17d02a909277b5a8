package runner

import (
	"bytes"
	"debug/elf"

	"coderush/internal/judge/sandbox/result"
)

// lookupEntry checks that image is an executable exposing symbol as a
// defined function.
func lookupEntry(image []byte, symbol string) *result.Fault {
	if len(image) == 0 {
		return result.NewFault(result.FaultEntryPointMissing, "compiled output has no entry point")
	}
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return result.NewFault(result.FaultEntryPointMissing, "compiled output is not an executable")
	}
	defer f.Close()
	if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
		return result.NewFault(result.FaultEntryPointMissing, "compiled output is not an executable")
	}
	if symbol == "" {
		return nil
	}

	syms, _ := f.Symbols()
	if dyn, err := f.DynamicSymbols(); err == nil {
		syms = append(syms, dyn...)
	}
	for _, s := range syms {
		if s.Name != symbol || s.Section == elf.SHN_UNDEF {
			continue
		}
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC {
			return result.NewFault(result.FaultEntryPointSignature, "entry point %s is not a function", symbol)
		}
		return nil
	}
	return result.NewFault(result.FaultEntryPointMissing, "entry point %s not found", symbol)
}

// Package static reads ELF function symbols without requiring a live
// process: used by pkg/probe to resolve the marker interface's symbol
// offsets, and by pkg/symbolize as the fallback path when no DWARF
// subprogram covers an address (stripped binary).
package static

import "debug/elf"

// FuncSymbols returns every STT_FUNC symbol in f's symbol table, both
// local and global bindings included since exported marker functions are
// typically global while statically linked helpers are typically local.
func FuncSymbols(f *elf.File) ([]elf.Symbol, error) {
	syms, err := f.Symbols()
	if err != nil {
		return nil, err
	}

	var funcs []elf.Symbol
	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
			continue
		}
		funcs = append(funcs, sym)
	}

	return funcs, nil
}

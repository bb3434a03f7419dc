// Package model defines the schema types shared by every engine component:
// fields and their closed type vocabulary, type-specific props, declared
// conditions, and the typed composite values (locations, dates, work hours,
// file references) fields hold at runtime. Normalize converts loosely typed
// input (decoded JSON/YAML, UI payloads) into those typed values so the rest
// of the engine can switch on concrete Go types instead of reflecting.
package model

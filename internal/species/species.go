// Package species normalises species names between the archive and the
// naming conventions of the instrument software that produced the files.
package species

import "strings"

// Translator maps alternative spellings to archive species names.
var Translator = map[string]string{
	"pfc-116":   "c2f6",
	"pfc-218":   "c3f8",
	"pfc-318":   "c4f8",
	"pce":       "ccl2ccl2",
	"tce":       "chclccl2",
	"benzene":   "c6h6",
	"propane":   "c3h8",
	"ethane":    "c2h6",
	"ethyne":    "c2h2",
	"c-propane": "c3h6",
	"toluene":   "c6h5ch3",
}

// flaskNames maps archive species names to the names used in flask files.
var flaskNames = map[string]string{
	"c2f6":        "PFC-116",
	"c3f8":        "PFC-218",
	"c4f8":        "PFC-318",
	"c6h6":        "benzene",
	"hfc-134a":    "HFC-134a",
	"hfc-152a":    "HFC-152a",
	"hfc-143a":    "HFC-143a",
	"hfc-227ea":   "HFC-227ea",
	"hfc-236fa":   "HFC-236fa",
	"hfc-245fa":   "HFC-245fa",
	"hfc-365mfc":  "HFC-365mfc",
	"hfc-4310mee": "HFC-4310mee",
	"hcfc-22":     "HCFC-22",
	"hcfc-141b":   "HCFC-141b",
	"hcfc-142b":   "HCFC-142b",
	"hcfc-132b":   "HCFC-132b",
	"hcfc-133a":   "HCFC-133a",
	"ch3cl":       "CH3Cl",
	"ch3br":       "CH3Br",
	"ch2cl2":      "CH2Cl2",
	"chcl3":       "CHCl3",
	"ch3ccl3":     "CH3CCl3",
	"ccl4":        "CCl4",
	"ccl2ccl2":    "PCE",
	"chclccl2":    "TCE",
	"clch2ch2cl":  "ClCH2CH2Cl",
}

// gcwerksNames maps archive species names to GCWerks file name spellings.
var gcwerksNames = map[string]string{
	"c2f6":     "pfc-116",
	"c3f8":     "pfc-218",
	"c4f8":     "pfc-318",
	"ccl2ccl2": "pce",
	"chclccl2": "tce",
	"c6h6":     "benzene",
	"c6h5ch3":  "toluene",
	"c3h8":     "propane",
	"c2h6":     "ethane",
	"c2h4":     "ethene",
	"c2h2":     "ethyne",
	"c3h6":     "c-propane",
}

// Format returns the archive name of a species: lower case, trimmed and
// translated.
func Format(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if t, ok := Translator[s]; ok {
		return t
	}
	return s
}

// Flask returns the species name used in GCMS-Medusa flask files.
func Flask(s string) string {
	f := Format(s)
	if t, ok := flaskNames[f]; ok {
		return t
	}
	return strings.ToUpper(f)
}

// GCWerks returns the species name used in GCWerks netCDF file names.
func GCWerks(s string) string {
	f := Format(s)
	if t, ok := gcwerksNames[f]; ok {
		return t
	}
	return f
}

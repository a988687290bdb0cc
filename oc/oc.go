// seehuhn.de/go/pdfscrub - forensic scanning and cleaning of PDF files
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package oc reads the optional content properties of a document.
//
// Optional content groups can hide parts of a page from view.  Content in
// groups which are off by default is still present in the file.
package oc

import (
	"seehuhn.de/go/pdfscrub/pdf"
)

// PDF 2.0 sections: 8.11

// maxGroups limits the number of groups read from the /OCGs array.
const maxGroups = 1 << 16

// Group represents an optional content group.
type Group struct {
	Ref  pdf.Reference
	Name string

	// Intent represents the intended use of the graphics in the group.
	// The default is ["View"].
	Intent []pdf.Name

	// Visible gives the state of the group in the default configuration.
	Visible bool

	// Locked is set if the default configuration prevents the user from
	// changing the state of the group.
	Locked bool
}

// Properties is the optional content properties dictionary of a document.
type Properties struct {
	Groups []*Group

	// Config is the default viewing configuration (the /D entry).
	Config pdf.Dict

	// Alternates is the number of alternate configurations (/Configs).
	Alternates int
}

// Read reads the /OCProperties entry of the document catalog.  If the
// document does not use optional content, nil is returned.
func Read(r pdf.Resolver, catalog pdf.Dict) (*Properties, error) {
	props, err := pdf.GetDict(r, catalog["OCProperties"])
	if props == nil {
		return nil, err
	}

	config, err := pdf.GetDict(r, props["D"])
	if err != nil {
		return nil, err
	}
	res := &Properties{Config: config}

	if configs, _ := pdf.GetArray(r, props["Configs"]); configs != nil {
		res.Alternates = len(configs)
	}

	baseOn := true
	if base, _ := pdf.GetName(r, config["BaseState"]); base == "OFF" {
		baseOn = false
	}
	on := refSet(r, config["ON"])
	off := refSet(r, config["OFF"])
	locked := refSet(r, config["Locked"])

	ocgs, err := pdf.GetArray(r, props["OCGs"])
	if err != nil {
		return nil, err
	}
	seen := make(map[pdf.Reference]bool)
	for _, obj := range ocgs {
		ref, ok := obj.(pdf.Reference)
		if !ok || seen[ref] {
			continue
		}
		seen[ref] = true
		if len(res.Groups) >= maxGroups {
			break
		}

		dict, err := pdf.GetDict(r, ref)
		if err != nil || dict == nil {
			continue
		}
		group := &Group{Ref: ref}
		if name, _ := pdf.GetString(r, dict["Name"]); name != nil {
			group.Name = name.AsTextString()
		}
		group.Intent = intents(r, dict["Intent"])

		switch {
		case baseOn:
			group.Visible = !off[ref]
		default:
			group.Visible = on[ref]
		}
		group.Locked = locked[ref]
		res.Groups = append(res.Groups, group)
	}

	return res, nil
}

func refSet(r pdf.Resolver, obj pdf.Object) map[pdf.Reference]bool {
	arr, _ := pdf.GetArray(r, obj)
	res := make(map[pdf.Reference]bool, len(arr))
	for _, elem := range arr {
		if ref, ok := elem.(pdf.Reference); ok {
			res[ref] = true
		}
	}
	return res
}

func intents(r pdf.Resolver, obj pdf.Object) []pdf.Name {
	var res []pdf.Name
	obj, _ = r.Resolve(obj)
	switch x := obj.(type) {
	case pdf.Name:
		res = append(res, x)
	case pdf.Array:
		for _, elem := range x {
			if name, _ := pdf.GetName(r, elem); name != "" {
				res = append(res, name)
			}
		}
	}
	if len(res) == 0 {
		res = []pdf.Name{"View"}
	}
	return res
}

// Hidden returns the groups which are not visible in the default
// configuration.
func (p *Properties) Hidden() []*Group {
	if p == nil {
		return nil
	}
	var res []*Group
	for _, g := range p.Groups {
		if !g.Visible {
			res = append(res, g)
		}
	}
	return res
}

// ShowAll returns a copy of the configuration dictionary in which all
// groups are visible and unlocked.
func ShowAll(config pdf.Dict) pdf.Dict {
	res := config.Clone()
	if res == nil {
		res = pdf.Dict{}
	}
	res["BaseState"] = pdf.Name("ON")
	delete(res, "OFF")
	delete(res, "Locked")
	delete(res, "AS")
	return res
}

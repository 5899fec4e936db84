// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sasdata/sas7bdat"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <input>",
	Short: "print a SAS7BDAT file's metadata and column schema",
	Args:  exactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "emit machine-readable JSON")
}

// inspectOutput is the JSON shape of the inspect command.
type inspectOutput struct {
	Name        string          `json:"name"`
	Label       string          `json:"label,omitempty"`
	Created     string          `json:"created,omitempty"`
	Modified    string          `json:"modified,omitempty"`
	Release     string          `json:"release"`
	Vendor      string          `json:"vendor"`
	Platform    string          `json:"platform"`
	Encoding    string          `json:"encoding"`
	Endianness  string          `json:"endianness"`
	WordSize    int             `json:"word_size"`
	Compression string          `json:"compression"`
	PageSize    int             `json:"page_size"`
	PageCount   int64           `json:"page_count"`
	RowLength   int             `json:"row_length"`
	RowCount    int64           `json:"row_count"`
	Columns     []inspectColumn `json:"columns"`
}

type inspectColumn struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Label  string `json:"label,omitempty"`
	Kind   string `json:"kind"`
	Type   string `json:"type"`
	Format string `json:"format,omitempty"`
	Offset int    `json:"offset"`
	Width  int    `json:"width"`
}

func runInspect(_ *cobra.Command, args []string) error {
	r, err := sas7bdat.Open(args[0], nil)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	md := r.Metadata()

	if inspectJSON {
		return printJSON(md)
	}

	wordSize := 32
	if md.Is64Bit {
		wordSize = 64
	}
	fmt.Printf("name:        %s\n", md.Name)
	if md.Label != "" {
		fmt.Printf("label:       %s\n", md.Label)
	}
	if !md.Created.IsZero() {
		fmt.Printf("created:     %s\n", md.Created.Format("2006-01-02 15:04:05"))
	}
	if !md.Modified.IsZero() {
		fmt.Printf("modified:    %s\n", md.Modified.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("release:     %s (%s, %s)\n", md.Release, md.Vendor, md.Platform)
	fmt.Printf("encoding:    %s\n", md.Encoding)
	fmt.Printf("layout:      %d-bit %s-endian, %d-byte pages x %d\n",
		wordSize, md.Endianness, md.PageSize, md.PageCount)
	fmt.Printf("compression: %s\n", md.Compression)
	fmt.Printf("rows:        %d x %d bytes\n", md.RowCount, md.RowLength)
	fmt.Println()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Name", "Kind", "Format", "Offset", "Width", "Label"})
	for i := range md.Columns {
		col := &md.Columns[i]
		table.Append([]string{
			strconv.Itoa(col.Index),
			col.Name,
			col.Kind.String(),
			col.Format,
			strconv.Itoa(col.Offset),
			strconv.Itoa(col.Width),
			col.Label,
		})
	}
	table.Render()
	return nil
}

func printJSON(md *sas7bdat.Metadata) error {
	wordSize := 32
	if md.Is64Bit {
		wordSize = 64
	}
	out := inspectOutput{
		Name:        md.Name,
		Label:       md.Label,
		Release:     md.Release,
		Vendor:      md.Vendor.String(),
		Platform:    md.Platform.String(),
		Encoding:    md.Encoding,
		Endianness:  md.Endianness.String(),
		WordSize:    wordSize,
		Compression: md.Compression.String(),
		PageSize:    md.PageSize,
		PageCount:   md.PageCount,
		RowLength:   md.RowLength,
		RowCount:    md.RowCount,
	}
	if !md.Created.IsZero() {
		out.Created = md.Created.Format("2006-01-02T15:04:05Z")
	}
	if !md.Modified.IsZero() {
		out.Modified = md.Modified.Format("2006-01-02T15:04:05Z")
	}
	for i := range md.Columns {
		col := &md.Columns[i]
		out.Columns = append(out.Columns, inspectColumn{
			Index:  col.Index,
			Name:   col.Name,
			Label:  col.Label,
			Kind:   col.Kind.String(),
			Type:   col.Type.String(),
			Format: col.Format,
			Offset: col.Offset,
			Width:  col.Width,
		})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

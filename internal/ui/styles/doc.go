// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling shared by the terminal and
// browser front-ends.
//
// # Palettes
//
// Two palettes, light and dark, define the chat colors. The browser page
// renders them as CSS variables; the terminal builds Lip Gloss styles from
// them.
//
// # Terminal Themes
//
// NewTheme picks a palette by name, or detects the terminal background with
// termenv when the name is "auto":
//
//	theme := styles.NewTheme("auto", os.Stdout)
//	fmt.Println(theme.UserLabel.Render("You"))
//
// # Spinners
//
// ASCII spinners shown while a completion request is in flight.
package styles

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colour palette and lipgloss styles shared by the
terminal surfaces.

All colours are lipgloss AdaptiveColor values so they follow the terminal
background. NewTheme pins the background to the user's theme setting
(system, light or dark) and applies their accent colour:

	theme := styles.NewTheme(app.Settings())
	fmt.Println(theme.UserLabel.Render("You"))

Status helpers such as RenderError pair every colour with an ASCII indicator.
*/
package styles

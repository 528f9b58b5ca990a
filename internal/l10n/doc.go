// Package l10n defines the localization vocabulary shared across the
// pipeline: locale normalization, translation layers, the path grammar used
// to address translatable fields, allowlists, and overlay op validation.
package l10n

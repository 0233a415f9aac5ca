package ngeo

// Query parameters of the source dialect.
const (
	ParamMapX           = "map_x"
	ParamMapY           = "map_y"
	ParamMapZoom        = "map_zoom"
	ParamBaseLayer      = "baselayer_ref"
	ParamTheme          = "theme"
	ParamTreeGroups     = "tree_groups"
	ParamFeatures       = "rl_features"
	PrefixGroupLayers   = "tree_group_layers_"
	PrefixEnable        = "tree_enable_"
	PrefixOpacity       = "tree_opacity_"
	PrefixDimension     = "dim_"
	PrefixLegacyOpacity = "opacity_"
	ListSeparator       = ","
)

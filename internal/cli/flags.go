package cli

import (
	"github.com/spf13/pflag"

	"planeview/internal/format"
	"planeview/internal/model"
)

var (
	_ pflag.Value = (*formatValue)(nil)
	_ pflag.Value = (*layoutValue)(nil)
	_ pflag.Value = (*groupByValue)(nil)
	_ pflag.Value = (*orderByValue)(nil)
)

type formatValue format.Format

func (v *formatValue) String() string { return string(*v) }
func (v *formatValue) Type() string   { return "format" }

func (v *formatValue) Set(s string) error {
	f, err := format.Parse(s)
	if err != nil {
		return err
	}
	*v = formatValue(f)
	return nil
}

type layoutValue model.Layout

func (v *layoutValue) String() string { return string(*v) }
func (v *layoutValue) Type() string   { return "layout" }

func (v *layoutValue) Set(s string) error {
	l, err := model.ParseLayout(s)
	if err != nil {
		return err
	}
	*v = layoutValue(l)
	return nil
}

type groupByValue model.GroupBy

func (v *groupByValue) String() string { return string(*v) }
func (v *groupByValue) Type() string   { return "group-by" }

func (v *groupByValue) Set(s string) error {
	g, err := model.ParseGroupBy(s)
	if err != nil {
		return err
	}
	*v = groupByValue(g)
	return nil
}

type orderByValue model.OrderBy

func (v *orderByValue) String() string { return string(*v) }
func (v *orderByValue) Type() string   { return "order-by" }

func (v *orderByValue) Set(s string) error {
	o, err := model.ParseOrderBy(s)
	if err != nil {
		return err
	}
	*v = orderByValue(o)
	return nil
}

// displayFlags are the display filter overrides shared by view commands.
type displayFlags struct {
	layout     layoutValue
	groupBy    groupByValue
	subGroupBy groupByValue
	orderBy    orderByValue
}

func (d *displayFlags) register(fs *pflag.FlagSet) {
	fs.Var(&d.layout, "layout", "Layout (list|kanban|calendar|spreadsheet|gantt_chart)")
	fs.Var(&d.groupBy, "group-by", "Group by (state|state_detail.name|state_detail.group|priority|cycle|target_date|created_by|project|none)")
	fs.Var(&d.subGroupBy, "sub-group-by", "Sub-group by (kanban only; same values as --group-by)")
	fs.Var(&d.orderBy, "order-by", "Order by (sort_order|-created_at|-updated_at|target_date|priority|name, - for descending)")
}

// apply overrides the flags the user set on top of base.
func (d *displayFlags) apply(fs *pflag.FlagSet, base model.DisplayFilters) model.DisplayFilters {
	if fs.Changed("layout") {
		base.Layout = model.Layout(d.layout)
	}
	if fs.Changed("group-by") {
		base.GroupBy = model.GroupBy(d.groupBy)
	}
	if fs.Changed("sub-group-by") {
		base.SubGroupBy = model.GroupBy(d.subGroupBy)
	}
	if fs.Changed("order-by") {
		base.OrderBy = model.OrderBy(d.orderBy)
	}
	if base.Layout == "" {
		base.Layout = model.LayoutList
	}
	return base.Normalized()
}

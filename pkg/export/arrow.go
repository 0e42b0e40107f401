package export

import (
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

var (
	yearlySchema = arrow.NewSchema([]arrow.Field{
		{Name: "date", Type: arrow.FixedWidthTypes.Date32},
		{Name: "births", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "deaths", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "immigrants", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "population", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, nil)

	summarySchema = arrow.NewSchema([]arrow.Field{
		{Name: "year", Type: arrow.PrimitiveTypes.Int32},
		{Name: "births", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "deaths", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "immigrants", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "population", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "natural_balance", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, nil)

	bandSchema = arrow.NewSchema([]arrow.Field{
		{Name: "start", Type: arrow.PrimitiveTypes.Int32},
		{Name: "band", Type: arrow.BinaryTypes.String},
		{Name: "male", Type: arrow.PrimitiveTypes.Float64},
		{Name: "female", Type: arrow.PrimitiveTypes.Float64},
	}, nil)

	longSchema = arrow.NewSchema([]arrow.Field{
		{Name: "province", Type: arrow.BinaryTypes.String},
		{Name: "column", Type: arrow.BinaryTypes.String},
		{Name: "value", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, nil)
)

func appendFloat(b *array.Float64Builder, v *Number) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(float64(*v))
}

func yearlyRecord(rows []YearlyRow) arrow.Record {
	b := array.NewRecordBuilder(memory.DefaultAllocator, yearlySchema)
	defer b.Release()
	for _, r := range rows {
		d, _ := time.Parse(dateLayout, r.Date)
		b.Field(0).(*array.Date32Builder).Append(arrow.Date32FromTime(d))
		appendFloat(b.Field(1).(*array.Float64Builder), r.Births)
		appendFloat(b.Field(2).(*array.Float64Builder), r.Deaths)
		appendFloat(b.Field(3).(*array.Float64Builder), r.Immigrants)
		appendFloat(b.Field(4).(*array.Float64Builder), r.Population)
	}
	return b.NewRecord()
}

func summaryRecord(rows []SummaryRow) arrow.Record {
	b := array.NewRecordBuilder(memory.DefaultAllocator, summarySchema)
	defer b.Release()
	for _, r := range rows {
		b.Field(0).(*array.Int32Builder).Append(int32(r.Year))
		appendFloat(b.Field(1).(*array.Float64Builder), r.Births)
		appendFloat(b.Field(2).(*array.Float64Builder), r.Deaths)
		appendFloat(b.Field(3).(*array.Float64Builder), r.Immigrants)
		appendFloat(b.Field(4).(*array.Float64Builder), r.Population)
		appendFloat(b.Field(5).(*array.Float64Builder), r.NaturalBalance)
	}
	return b.NewRecord()
}

func bandRecord(rows []BandRow) arrow.Record {
	b := array.NewRecordBuilder(memory.DefaultAllocator, bandSchema)
	defer b.Release()
	for _, r := range rows {
		b.Field(0).(*array.Int32Builder).Append(int32(r.Start))
		b.Field(1).(*array.StringBuilder).Append(r.Label)
		b.Field(2).(*array.Float64Builder).Append(float64(r.Male))
		b.Field(3).(*array.Float64Builder).Append(float64(r.Female))
	}
	return b.NewRecord()
}

func longRecord(rows []LongRow) arrow.Record {
	b := array.NewRecordBuilder(memory.DefaultAllocator, longSchema)
	defer b.Release()
	for _, r := range rows {
		b.Field(0).(*array.StringBuilder).Append(r.Province)
		b.Field(1).(*array.StringBuilder).Append(r.Column)
		appendFloat(b.Field(2).(*array.Float64Builder), r.Value)
	}
	return b.NewRecord()
}

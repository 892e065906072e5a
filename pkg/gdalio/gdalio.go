// Package gdalio reads and writes georeferenced rasters through GDAL.
package gdalio

import (
	"context"
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/abworrall/stack-composite/pkg/raster"
)

var registerOnce sync.Once

// A Driver writes everything in one GDAL format, and reads anything GDAL can open.
type Driver struct {
	Format          godal.DriverName
	CreationOptions []string
}

// NewDriver accepts "gtiff" or "kea", or any GDAL driver short name.
func NewDriver(format string) *Driver {
	registerOnce.Do(godal.RegisterAll)

	d := &Driver{}
	switch format {
	case "", "gtiff", "GTiff":
		d.Format = godal.GTiff
		d.CreationOptions = []string{"TILED=YES", "BIGTIFF=IF_SAFER"}
	case "kea", "KEA":
		d.Format = godal.DriverName("KEA")
	default:
		d.Format = godal.DriverName(format)
	}
	return d
}

func (d *Driver) Read(ctx context.Context, name string) (*raster.Raster, error) {
	ds, err := godal.Open(name, godal.RasterOnly())
	if err != nil {
		return nil, fmt.Errorf("gdal open '%s': %w", name, err)
	}
	defer ds.Close()

	st := ds.Structure()
	r := &raster.Raster{
		Geometry: raster.Geometry{
			Width:      st.SizeX,
			Height:     st.SizeY,
			Projection: ds.Projection(),
		},
		DataType: fromGDAL(st.DataType),
	}
	if gt, err := ds.GeoTransform(); err == nil {
		r.GeoTransform = gt
	}

	for i, band := range ds.Bands() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i == 0 {
			r.NoData, r.HasNoData = band.NoData()
		}
		vals := make([]float64, st.SizeX*st.SizeY)
		if err := band.Read(0, 0, vals, st.SizeX, st.SizeY); err != nil {
			return nil, fmt.Errorf("gdal read '%s' band %d: %w", name, i+1, err)
		}
		g, err := raster.NewGridFromValues(st.SizeX, st.SizeY, vals)
		if err != nil {
			return nil, fmt.Errorf("gdal read '%s' band %d: %w", name, i+1, err)
		}
		r.Bands = append(r.Bands, g)
	}

	return r, nil
}

func (d *Driver) Write(ctx context.Context, name string, r *raster.Raster) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("gdal write '%s': %w", name, err)
	}

	ds, err := godal.Create(d.Format, name, r.NumBands(), toGDAL(r.DataType), r.Width, r.Height,
		godal.CreationOption(d.CreationOptions...))
	if err != nil {
		return fmt.Errorf("gdal create '%s': %w", name, err)
	}

	if err := d.fill(ctx, ds, r); err != nil {
		ds.Close()
		return fmt.Errorf("gdal write '%s': %w", name, err)
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("gdal close '%s': %w", name, err)
	}
	return nil
}

func (d *Driver) fill(ctx context.Context, ds *godal.Dataset, r *raster.Raster) error {
	if r.GeoTransform != ([6]float64{}) {
		if err := ds.SetGeoTransform(r.GeoTransform); err != nil {
			return err
		}
	}
	if r.Projection != "" {
		if err := ds.SetProjection(r.Projection); err != nil {
			return err
		}
	}

	for i, band := range ds.Bands() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.HasNoData {
			if err := band.SetNoData(r.NoData); err != nil {
				return fmt.Errorf("band %d nodata: %w", i+1, err)
			}
		}
		if err := band.Write(0, 0, r.Bands[i].Values(), r.Width, r.Height); err != nil {
			return fmt.Errorf("band %d: %w", i+1, err)
		}
	}
	return nil
}

// Copy duplicates the dataset file(s) verbatim; re-encoding through GDAL
// would not give a byte-identical result.
func (d *Driver) Copy(ctx context.Context, src, dst string) error {
	return raster.CopyPath(src, dst)
}

func fromGDAL(dt godal.DataType) raster.DataType {
	switch dt {
	case godal.Byte:
		return raster.Byte
	case godal.UInt16:
		return raster.UInt16
	case godal.Int16:
		return raster.Int16
	case godal.UInt32:
		return raster.UInt32
	case godal.Int32:
		return raster.Int32
	case godal.Float32:
		return raster.Float32
	case godal.Float64:
		return raster.Float64
	}
	return raster.Undefined
}

func toGDAL(dt raster.DataType) godal.DataType {
	switch dt {
	case raster.Byte:
		return godal.Byte
	case raster.UInt16:
		return godal.UInt16
	case raster.Int16:
		return godal.Int16
	case raster.UInt32:
		return godal.UInt32
	case raster.Int32:
		return godal.Int32
	case raster.Float32:
		return godal.Float32
	}
	return godal.Float64
}

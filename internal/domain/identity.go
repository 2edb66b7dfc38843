package domain

import (
	"fmt"
	"net/url"
)

// Archive defaults for the IMERG half-hourly GIS product at NASA PPS.
const (
	DefaultHost        = "arthurhou.pps.eosdis.nasa.gov"
	DefaultScheme      = "ftp"
	DefaultProductType = "3B-HHR-GIS.MS.MRG.3IMERG"
	DefaultVersion     = 6
	DefaultRoot        = "gpmdata"
)

// Archive describes where and how images are named on the remote archive.
// It is a value type; components receive a copy at construction.
type Archive struct {
	Scheme      string `yaml:"scheme"`
	Host        string `yaml:"host"`
	Root        string `yaml:"root"`
	ProductType string `yaml:"product_type"`
	Version     int    `yaml:"version"`
}

// DefaultArchive returns the production archive settings.
func DefaultArchive() Archive {
	return Archive{
		Scheme:      DefaultScheme,
		Host:        DefaultHost,
		Root:        DefaultRoot,
		ProductType: DefaultProductType,
		Version:     DefaultVersion,
	}
}

// ImageName returns the canonical image name for w, without extension, e.g.
// 3B-HHR-GIS.MS.MRG.3IMERG.20170227-S013000-E015959.0090.V06B.
//
// The layout is fixed by the archive. Any deviation makes every fetch fail.
func (a Archive) ImageName(w AcquisitionWindow) string {
	return fmt.Sprintf("%s.%04d%02d%02d-S%02d%02d%02d-E%02d%02d%02d.%04d.V%02dB",
		a.ProductType,
		w.Year, w.Month, w.Day,
		w.StartHour, w.StartMinute, w.StartSecond,
		w.EndHour, w.EndMinute, w.EndSecond,
		w.MinutesSinceMidnight,
		a.Version,
	)
}

// FileName is the image name with the GeoTIFF extension.
func (a Archive) FileName(w AcquisitionWindow) string {
	return a.ImageName(w) + ".tif"
}

// RemotePath returns the absolute path of the image on the archive host:
// /gpmdata/YYYY/MM/DD/gis/{name}.tif.
func (a Archive) RemotePath(w AcquisitionWindow) string {
	return fmt.Sprintf("/%s/%04d/%02d/%02d/gis/%s", a.Root, w.Year, w.Month, w.Day, a.FileName(w))
}

// URL returns the retrieval URL for w. The archive accepts the operator's
// email as both user and password; the '@' is percent-encoded.
func (a Archive) URL(w AcquisitionWindow, email string) *url.URL {
	return &url.URL{
		Scheme: a.Scheme,
		User:   url.UserPassword(email, email),
		Host:   a.Host,
		Path:   a.RemotePath(w),
	}
}

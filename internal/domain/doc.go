// Package domain models daily precipitation accumulation from the NASA GPM
// IMERG half-hourly product.
//
// # Data Source
//
// IMERG is published by the Precipitation Processing System (PPS) at
// arthurhou.pps.eosdis.nasa.gov. The GIS variant ships one single-band
// GeoTIFF per 30-minute slot under
//
//	/gpmdata/YYYY/MM/DD/gis/{image}.tif
//
// Access is anonymous-by-email: the registered email address is both user
// and password.
//
// # Image Naming
//
//	3B-HHR-GIS.MS.MRG.3IMERG.20170227-S013000-E015959.0090.V06B
//	|  type                 | day    | start | end    |min |ver
//
//	Day:     YYYYMMDD of the slot start.
//	Start:   S + HHMMSS, end: E + HHMMSS (start + 30min - 1s).
//	Minutes: start minute of day, zero-padded to four digits.
//	Version: V + two digits + "B".
//
// # Daily Accumulation (APD)
//
// A day D accumulates the 48 slots from D-1 12:00:00 through D 11:59:59.
// Pixel values are rates in 0.1 mm/h; each slot covers half an hour, so
// the daily millimeters are the sum of the 48 samples divided by 20.
// See [WindowsForDay] and [MillimetersFactor].
//
// # Pixel Lookup
//
// A station's pixel is found by applying the inverse of the raster's
// affine [GeoTransform] to (lon, lat) and truncating toward zero.
package domain

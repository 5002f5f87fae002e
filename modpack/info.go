package modpack

import (
	"encoding/xml"

	"github.com/golang/glog"
)

// resource matches the info.xml root element of an extracted stock mod.
type resource struct {
	XMLName     xml.Name `xml:"resource"`
	Name        string   `xml:"name,attr"`
	Version     string   `xml:"version,attr"`
	Description string   `xml:"description,attr"`
	Author      string   `xml:"author,attr"`
	Weblink     string   `xml:"weblink,attr,omitempty"`
}

func infoXML(meta Meta) []byte {
	body, err := xml.MarshalIndent(resource{
		Name:        meta.Name,
		Version:     meta.Version,
		Description: meta.Description,
		Author:      meta.Author,
		Weblink:     meta.Weblink,
	}, "", "  ")
	if err != nil {
		// resource contains only strings; Marshal cannot fail on it.
		glog.Errorf("could not marshal info.xml: %v", err)
		return nil
	}
	return append([]byte(xml.Header), body...)
}

// ParseInfo reads an info.xml body back into Meta. Used by the archive
// tests and by the preview server's mod summary.
func ParseInfo(body []byte) (Meta, error) {
	var r resource
	if err := xml.Unmarshal(body, &r); err != nil {
		return Meta{}, err
	}
	return Meta{
		Name:        r.Name,
		Version:     r.Version,
		Description: r.Description,
		Author:      r.Author,
		Weblink:     r.Weblink,
	}, nil
}

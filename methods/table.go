package methods

import (
	"strings"
)

// Method describes a known API method.
type Method struct {
	Name string

	// Whether calls must carry an auth token.
	Auth bool
}

// Table of API methods with known authentication requirements. Methods missing from the table can still be called; they are sent unauthenticated unless the caller asks otherwise.
var Table = map[string]Method{
	"flickr.auth.checkToken":            {Name: "flickr.auth.checkToken", Auth: true},
	"flickr.auth.getFrob":               {Name: "flickr.auth.getFrob"},
	"flickr.auth.getToken":              {Name: "flickr.auth.getToken"},
	"flickr.auth.getFullToken":          {Name: "flickr.auth.getFullToken"},
	"flickr.test.echo":                  {Name: "flickr.test.echo"},
	"flickr.test.login":                 {Name: "flickr.test.login", Auth: true},
	"flickr.test.null":                  {Name: "flickr.test.null", Auth: true},
	"flickr.people.findByEmail":         {Name: "flickr.people.findByEmail"},
	"flickr.people.getInfo":             {Name: "flickr.people.getInfo"},
	"flickr.people.getUploadStatus":     {Name: "flickr.people.getUploadStatus", Auth: true},
	"flickr.photos.addTags":             {Name: "flickr.photos.addTags", Auth: true},
	"flickr.photos.delete":              {Name: "flickr.photos.delete", Auth: true},
	"flickr.photos.getInfo":             {Name: "flickr.photos.getInfo"},
	"flickr.photos.getSizes":            {Name: "flickr.photos.getSizes"},
	"flickr.photos.getRecent":           {Name: "flickr.photos.getRecent"},
	"flickr.photos.search":              {Name: "flickr.photos.search"},
	"flickr.photos.setMeta":             {Name: "flickr.photos.setMeta", Auth: true},
	"flickr.photos.setTags":             {Name: "flickr.photos.setTags", Auth: true},
	"flickr.photos.upload.checkTickets": {Name: "flickr.photos.upload.checkTickets"},
	"flickr.photosets.addPhoto":         {Name: "flickr.photosets.addPhoto", Auth: true},
	"flickr.photosets.create":           {Name: "flickr.photosets.create", Auth: true},
	"flickr.photosets.getList":          {Name: "flickr.photosets.getList"},
	"flickr.photosets.getPhotos":        {Name: "flickr.photosets.getPhotos"},
}

// Converts an underscore-separated method name ("flickr_photos_search") to the dotted API form ("flickr.photos.search"). Dotted names are returned unchanged.
func Translate(name string) string {
	return strings.ReplaceAll(name, "_", ".")
}

// Whether the named method (in either form) requires authentication.
func RequiresAuth(name string) bool {
	return Table[Translate(name)].Auth
}
